package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefleet/pkg/logger"
)

type ctxKey struct{}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json by default", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger.New(logger.WithOutput(&buf)).Info("route added")

		entry := decodeLine(t, &buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "route added", entry["msg"])
	})

	t.Run("level filtering", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithLevelName("warn"))
		log.Info("dropped")
		assert.Empty(t, buf.String())
		log.Warn("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatText)).Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { logger.WithFormat("xml") })
	})
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	cases := []struct {
		env       string
		wantEnv   string
		debugSeen bool
		json      bool
	}{
		{"production", logger.EnvProduction, false, true},
		{"prod", logger.EnvProduction, false, true},
		{"stage", logger.EnvStaging, false, true},
		{"development", logger.EnvDevelopment, true, false},
		{"", logger.EnvDevelopment, true, false},
	}
	for _, tc := range cases {
		t.Run("env "+tc.env, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			log := logger.New(logger.WithOutput(&buf), logger.WithEnvironment(tc.env, "storefleet"))

			log.Debug("debug line")
			assert.Equal(t, tc.debugSeen, buf.Len() > 0)

			buf.Reset()
			log.Info("info line")
			if tc.json {
				entry := decodeLine(t, &buf)
				assert.Equal(t, tc.wantEnv, entry["env"])
				assert.Equal(t, "storefleet", entry["service"])
			} else {
				assert.Contains(t, buf.String(), "env="+tc.wantEnv)
				assert.Contains(t, buf.String(), "service=storefleet")
			}
		})
	}
}

func TestContextExtractors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	extract := func(ctx context.Context) (slog.Attr, bool) {
		if code, ok := ctx.Value(ctxKey{}).(string); ok {
			return logger.Tenant(code), true
		}
		return slog.Attr{}, false
	}
	log := logger.New(logger.WithOutput(&buf), logger.WithContextExtractors(extract, nil)).
		With(logger.Component("router"))

	log.InfoContext(context.WithValue(context.Background(), ctxKey{}, "shop_a"), "bound")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "shop_a", entry["tenant"])
	assert.Equal(t, "router", entry["component"])

	buf.Reset()
	log.InfoContext(context.Background(), "unbound")
	assert.NotContains(t, decodeLine(t, &buf), "tenant")
}

func TestAttrs(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	assert.Equal(t, "error", logger.Error(errors.New("x")).Key)
	assert.True(t, logger.Errors(nil, nil).Equal(slog.Attr{}))
	assert.Equal(t, []string{"a", "b"}, logger.Errors(errors.New("a"), nil, errors.New("b")).Value.Any())
	assert.Equal(t, "step", logger.Step("migrate").Key)
	assert.Equal(t, time.Second, logger.Duration(time.Second).Value.Duration())

	g := logger.Group("db", logger.Tenant("shop_a"))
	assert.Equal(t, slog.KindGroup, g.Value.Kind())
}
