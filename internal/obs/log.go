package obs

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerMu sync.RWMutex
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger   = newLogger(zapcore.Lock(os.Stdout))
)

func newLogger(ws zapcore.WriteSyncer) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(enc), ws, level))
}

// Logger returns the shared structured logger used across the service.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetLevel changes the minimum level of the shared logger at runtime.
func SetLevel(name string) error {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// RedirectOutput points the shared logger at w and returns a function that
// restores the previous logger. Intended for tests.
func RedirectOutput(w io.Writer) (restore func()) {
	loggerMu.Lock()
	prev := logger
	logger = newLogger(zapcore.AddSync(w))
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

// LogRequest emits one access-log line with common HTTP fields.
func LogRequest(fields ...zap.Field) {
	Logger().Info("http request", fields...)
}
