// Package logging provides the structured, stderr-only logger used
// throughout the memory layer. stdout is reserved for the assistant's
// context channel (spec section 4.10), so nothing in this package ever
// writes there.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base = newBase()

func newBase() *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(os.Stderr)),
		zap.NewAtomicLevelAt(zap.InfoLevel),
	)
	return zap.New(core)
}

// Category groups related log statements the way codenerd's
// internal/logging categorizes by subsystem (Store, Hooks, Classifier,
// ...), but using zap's field API rather than Printf-style formatting.
type Category string

const (
	CategoryHooks      Category = "hooks"
	CategoryStorage    Category = "storage"
	CategoryRetrieval  Category = "retrieval"
	CategoryInjection  Category = "injection"
	CategoryClassifier Category = "classifier"
	CategoryQueue      Category = "queue"
	CategorySecurity   Category = "security"
	CategoryTrace      Category = "trace"
	CategoryConnector  Category = "connector"
)

// Get returns a logger scoped to the given category.
func Get(cat Category) *zap.Logger {
	return base.With(zap.String("category", string(cat)))
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	_ = base.Sync()
}
