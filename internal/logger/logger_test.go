package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit(t *testing.T) {
	originalLog := log
	defer func() { log = originalLog }()

	t.Run("Production", func(t *testing.T) {
		Init("production")
		assert.NotNil(t, log)
	})

	t.Run("Development", func(t *testing.T) {
		Init("development")
		assert.NotNil(t, log)
	})
}

func TestNewLoggerLevel(t *testing.T) {
	l := newLogger("production", "warn")
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l = newLogger("development", "not-a-level")
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestL(t *testing.T) {
	originalLog := log
	defer func() { log = originalLog }()

	log = nil
	t.Setenv("APP_ENV", "test")

	assert.NotNil(t, L())
	assert.NotNil(t, log)
}

func TestReplace(t *testing.T) {
	originalLog := log
	defer func() { log = originalLog }()

	core, observed := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	L().Info("swapped")
	restore()

	assert.Equal(t, 1, observed.Len())
	assert.Equal(t, originalLog, log)
}

func TestContextFunctions(t *testing.T) {
	ctx := context.Background()
	reqID := "test-request-id-123"

	t.Run("WithRequestID", func(t *testing.T) {
		newCtx := WithRequestID(ctx, reqID)
		assert.Equal(t, reqID, newCtx.Value(requestIDKey))
	})

	t.Run("RequestIDFrom", func(t *testing.T) {
		assert.Equal(t, reqID, RequestIDFrom(WithRequestID(ctx, reqID)))
		assert.Equal(t, "", RequestIDFrom(ctx))
	})
}

func TestFromCtx(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	originalLog := log
	log = zap.New(core)
	defer func() { log = originalLog }()

	t.Run("WithRequestID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-abc-123")
		FromCtx(ctx).Info("test message with id")

		logs := observed.TakeAll()
		assert.Len(t, logs, 1)
		assert.Equal(t, "req-abc-123", logs[0].ContextMap()["request_id"])
	})

	t.Run("WithoutRequestID", func(t *testing.T) {
		FromCtx(context.Background()).Info("test message without id")

		logs := observed.TakeAll()
		assert.Len(t, logs, 1)
		_, ok := logs[0].ContextMap()["request_id"]
		assert.False(t, ok)
	})

	t.Run("WithFields", func(t *testing.T) {
		ctx := WithFields(WithRequestID(context.Background(), "req-1"), zap.Uint("user_id", 9))
		ctx = WithFields(ctx, zap.String("sku", "T-1000"))
		FromCtx(ctx).Info("scoped")

		logs := observed.TakeAll()
		assert.Len(t, logs, 1)
		fields := logs[0].ContextMap()
		assert.Equal(t, "req-1", fields["request_id"])
		assert.EqualValues(t, 9, fields["user_id"])
		assert.Equal(t, "T-1000", fields["sku"])
	})
}

func TestSync(t *testing.T) {
	assert.NotPanics(t, func() {
		Sync()
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, RequestIDFrom(r.Context()))
	})

	handler := RequestIDMiddleware(nextHandler)

	t.Run("Generates ID when missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("Preserves existing ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", "test-id-123")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "test-id-123", w.Header().Get("X-Request-ID"))
	})
}

func TestLoggingMiddleware(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	originalLog := log
	log = zap.New(core)
	defer func() { log = originalLog }()

	t.Run("client error logs at info", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			w.Write([]byte("short and stout"))
		})

		LoggingMiddleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/orders", nil))

		logs := observed.TakeAll()
		assert.Len(t, logs, 1)
		assert.Equal(t, "http request", logs[0].Message)
		assert.Equal(t, zapcore.InfoLevel, logs[0].Level)
		assert.Equal(t, "/orders", logs[0].ContextMap()["path"])
		assert.EqualValues(t, http.StatusTeapot, logs[0].ContextMap()["status"])
		assert.EqualValues(t, 15, logs[0].ContextMap()["bytes"])
	})

	t.Run("server error logs at error", func(t *testing.T) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		LoggingMiddleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/purchase", nil))

		logs := observed.TakeAll()
		assert.Len(t, logs, 1)
		assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)
	})
}
