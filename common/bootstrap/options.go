package bootstrap

import (
	"github.com/aiwf/engine/common/config"
	"github.com/aiwf/engine/common/db"
	"github.com/aiwf/engine/common/logger"
)

// Option configures Setup behavior.
type Option func(*options)

type options struct {
	customConfig *config.Config
	customLogger *logger.Logger
	skipDB       bool
	skipBroker   bool
	dbInitHook   func(*db.DB) error
}

func defaultOptions() *options {
	return &options{}
}

// WithConfig uses a pre-built config instead of loading from the environment.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.customConfig = cfg }
}

// WithLogger uses a pre-built logger.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.customLogger = log }
}

// SkipDB skips database initialization.
func SkipDB() Option {
	return func(o *options) { o.skipDB = true }
}

// SkipBroker skips Redis and queue initialization.
func SkipBroker() Option {
	return func(o *options) { o.skipBroker = true }
}

// WithDBInitHook runs fn against the database after connecting, before
// Setup returns. Used to apply the schema at startup.
func WithDBInitHook(fn func(*db.DB) error) Option {
	return func(o *options) { o.dbInitHook = fn }
}
