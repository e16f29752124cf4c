package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefleet/pkg/config"
)

type defaultsConfig struct {
	Addr     string        `env:"CONFIG_TEST_ADDR" envDefault:":8080"`
	Interval time.Duration `env:"CONFIG_TEST_INTERVAL" envDefault:"1h"`
	Workers  int           `env:"CONFIG_TEST_WORKERS" envDefault:"4"`
}

type overrideConfig struct {
	Workers int  `env:"CONFIG_TEST_OVERRIDE_WORKERS" envDefault:"4"`
	Debug   bool `env:"CONFIG_TEST_OVERRIDE_DEBUG"`
}

type requiredConfig struct {
	DSN string `env:"CONFIG_TEST_REQUIRED_DSN,required"`
}

type cachedConfig struct {
	Value string `env:"CONFIG_TEST_CACHED" envDefault:"first"`
}

type nestedConfig struct {
	Master struct {
		DSN string `env:"DSN" envDefault:"postgres://localhost/master"`
	} `envPrefix:"CONFIG_TEST_MASTER_"`
}

type fileConfig struct {
	FileValue    string   `env:"CONFIG_TEST_FILE_VALUE"`
	Preset       string   `env:"CONFIG_TEST_PRESET"`
	List         []string `env:"CONFIG_TEST_LIST" envSeparator:","`
	FallbackOnly string   `env:"CONFIG_TEST_FALLBACK_ONLY"`
}

func TestLoad_Defaults(t *testing.T) {
	config.ResetCache()

	var cfg defaultsConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, 4, cfg.Workers)
}

func TestLoad_EnvOverrides(t *testing.T) {
	config.ResetCache()
	t.Setenv("CONFIG_TEST_OVERRIDE_WORKERS", "16")
	t.Setenv("CONFIG_TEST_OVERRIDE_DEBUG", "true")

	var cfg overrideConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, 16, cfg.Workers)
	assert.True(t, cfg.Debug)
}

func TestLoad_Errors(t *testing.T) {
	config.ResetCache()
	os.Unsetenv("CONFIG_TEST_REQUIRED_DSN")

	var cfg requiredConfig
	require.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
	require.ErrorIs(t, config.Load[requiredConfig](nil), config.ErrNilPointer)
	assert.Panics(t, func() { config.MustLoad(&cfg) })

	t.Setenv("CONFIG_TEST_REQUIRED_DSN", "postgres://db/master")
	require.NoError(t, config.Load(&cfg), "a failed parse is not cached")
	assert.Equal(t, "postgres://db/master", cfg.DSN)
}

func TestLoad_CachedPerType(t *testing.T) {
	config.ResetCache()

	var first cachedConfig
	require.NoError(t, config.Load(&first))
	assert.Equal(t, "first", first.Value)

	t.Setenv("CONFIG_TEST_CACHED", "second")

	var again cachedConfig
	require.NoError(t, config.Load(&again))
	assert.Equal(t, "first", again.Value)

	config.ResetCache()
	require.NoError(t, config.Load(&again))
	assert.Equal(t, "second", again.Value)
}

func TestLoad_NestedPrefix(t *testing.T) {
	config.ResetCache()
	t.Setenv("CONFIG_TEST_MASTER_DSN", "postgres://primary/master")

	var cfg nestedConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "postgres://primary/master", cfg.Master.DSN)
}

func TestLoadEnv(t *testing.T) {
	config.ResetCache()
	for _, key := range []string{"CONFIG_TEST_FILE_VALUE", "CONFIG_TEST_LIST", "CONFIG_TEST_FALLBACK_ONLY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("CONFIG_TEST_PRESET", "from_process")

	require.NoError(t, config.LoadEnv("testdata/.env.test", "testdata/.env.fallback"))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))

	assert.Equal(t, "from_file", cfg.FileValue, "earlier files win")
	assert.Equal(t, "from_process", cfg.Preset, "process environment wins")
	assert.Equal(t, []string{"a", "b", "c"}, cfg.List)
	assert.Equal(t, "fallback", cfg.FallbackOnly)

	require.ErrorIs(t, config.LoadEnv("testdata/missing.env"), config.ErrLoadingEnvFile)
}
