// Package logging holds the process-wide zap logger and the field helpers
// shared by the client and the directory service.
package logging

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fruitsalade/networkfs/pkg/protocol"
)

type contextKey string

const loggerKey contextKey = "logger"

var (
	mu     sync.RWMutex
	global *zap.Logger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Config selects level, encoding and destination.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// Build constructs a logger from cfg without installing it. An unknown level
// falls back to info.
func Build(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	lvl := zapcore.InfoLevel
	_ = lvl.UnmarshalText([]byte(cfg.Level))

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	atom := zap.NewAtomicLevelAt(lvl)
	zc.Level = atom
	if cfg.OutputPath != "" {
		zc.OutputPaths = []string{cfg.OutputPath}
		zc.ErrorOutputPaths = []string{"stderr"}
	}

	l, err := zc.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	return l, atom, err
}

// Init installs a logger built from cfg as the global one.
func Init(cfg Config) error {
	l, atom, err := Build(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	global, level = l, atom
	mu.Unlock()
	return nil
}

// InitDefault installs a production logger.
func InitDefault() {
	l, _ := zap.NewProduction()
	mu.Lock()
	global = l
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return nil
	}
	return global.Sync()
}

// SetLevel changes the global level at runtime. Unknown levels are ignored.
func SetLevel(name string) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return
	}
	mu.RLock()
	level.SetLevel(l)
	mu.RUnlock()
}

// L returns the global logger, installing the default one on first use.
func L() *zap.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}
	InitDefault()
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Named returns a child of the global logger.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// WithContext returns the request logger stored in ctx, or the global one.
func WithContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return L()
}

// WithRequestID stores a logger tagged with requestID in ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, loggerKey, WithContext(ctx).With(zap.String("request_id", requestID)))
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Middleware logs each request at completion. It reuses the id assigned by
// chi's RequestID middleware, falling back to the client's header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		id := middleware.GetReqID(ctx)
		if id == "" {
			id = r.Header.Get(middleware.RequestIDHeader)
		}
		if id != "" {
			ctx = WithRequestID(ctx, id)
			w.Header().Set(middleware.RequestIDHeader, id)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		WithContext(ctx).Info("request completed",
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", status),
			zap.Int("size", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Method tags a remote call method.
func Method(m protocol.Method) zap.Field {
	return zap.String("method", string(m))
}

// Token tags a credential in redacted form.
func Token(token string) zap.Field {
	return zap.String("token", protocol.RedactToken(token))
}

// Inode tags a remote identifier under key.
func Inode(key string, id uint64) zap.Field {
	return zap.Uint64(key, id)
}

// Name tags an entry name.
func Name(name string) zap.Field {
	return zap.String("name", name)
}
