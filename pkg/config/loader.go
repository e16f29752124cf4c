package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvSelector names the variable that selects an environment-specific env file.
const EnvSelector = "STOREFLEET_ENV"

type cache struct {
	mu      sync.Mutex
	values  map[reflect.Type]any
	envOnce *sync.Once
}

var global = &cache{
	values:  make(map[reflect.Type]any),
	envOnce: new(sync.Once),
}

// Load fills v from the environment. The first successful parse for a type is
// cached and copied into v on later calls.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	loadDefaultEnvFiles()

	typ := reflect.TypeFor[T]()

	global.mu.Lock()
	defer global.mu.Unlock()

	if cached, ok := global.values[typ]; ok {
		*v = cached.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	global.values[typ] = parsed
	*v = parsed
	return nil
}

// MustLoad is Load that panics on failure. Meant for process startup.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: load %s: %v", reflect.TypeFor[T](), err))
	}
}

// LoadEnv loads the given env files into the process environment without
// overriding variables that are already set. It also marks the default env
// files as handled, so Load will not read them afterwards.
func LoadEnv(paths ...string) error {
	global.mu.Lock()
	once := global.envOnce
	global.mu.Unlock()
	once.Do(func() {})

	if len(paths) == 0 {
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return errors.Join(ErrLoadingEnvFile, err)
	}
	return nil
}

// ResetCache forgets parsed values and allows env files to be loaded again.
func ResetCache() {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.values = make(map[reflect.Type]any)
	global.envOnce = new(sync.Once)
}

func loadDefaultEnvFiles() {
	global.mu.Lock()
	once := global.envOnce
	global.mu.Unlock()

	once.Do(func() {
		for _, path := range defaultEnvFiles() {
			if _, err := os.Stat(path); err == nil {
				_ = godotenv.Load(path)
			}
		}
	})
}

func defaultEnvFiles() []string {
	if name := os.Getenv(EnvSelector); name != "" {
		return []string{".env." + name, ".env"}
	}
	return []string{".env"}
}
