package main

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/born-ml/dnn/internal/modelstore"
)

// Config is the process configuration read from the environment.
type Config struct {
	// LogLevel is a zap level name or a logr verbosity (0, 1, 2, ...).
	LogLevel string `envconfig:"DNN_LOG_LEVEL" default:"info"`
	// LogFormat is "console" or "json".
	LogFormat string `envconfig:"DNN_LOG_FORMAT" default:"console"`
	// CacheDir receives models fetched from remote storage.
	CacheDir string `envconfig:"DNN_CACHE_DIR"`
	// Python is the interpreter used by export.
	Python string `envconfig:"DNN_PYTHON" default:"python3"`

	AWSRegion      string `envconfig:"AWS_REGION"`
	AWSEndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
	AWSAnonymous   bool   `envconfig:"AWS_ANONYMOUS_CREDENTIAL"`
	GCSCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// loadConfig reads Config from the environment and fills in the cache
// directory default.
func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, errors.Wrap(err, "reading environment")
	}
	if cfg.CacheDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		cfg.CacheDir = filepath.Join(dir, "dnn", "models")
	}
	return cfg, nil
}

// storeOptions maps the storage settings onto model store options.
func (c Config) storeOptions() []modelstore.Option {
	var opts []modelstore.Option
	if c.AWSRegion != "" {
		opts = append(opts, modelstore.WithS3Region(c.AWSRegion))
	}
	if c.AWSEndpointURL != "" {
		opts = append(opts, modelstore.WithS3Endpoint(c.AWSEndpointURL))
	}
	if c.AWSAnonymous {
		opts = append(opts, modelstore.WithS3Anonymous())
	}
	if c.GCSCredentials != "" {
		opts = append(opts, modelstore.WithGCSCredentials(c.GCSCredentials))
	}
	return opts
}

// parseLevel accepts zap level names and non-negative logr verbosities.
func parseLevel(s string) (zapcore.Level, error) {
	if v, err := strconv.Atoi(s); err == nil {
		if v < 0 {
			return 0, errors.Errorf("negative log verbosity %d", v)
		}
		return zapcore.Level(-v), nil
	}
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return 0, errors.Wrapf(err, "log level %q", s)
	}
	return level, nil
}

// newLogger builds a zap logger writing to w and adapts it to logr. The
// returned function flushes buffered entries.
func newLogger(cfg Config, w io.Writer) (logr.Logger, func(), error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return logr.Discard(), nil, err
	}

	var encoder zapcore.Encoder
	switch cfg.LogFormat {
	case "console":
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return logr.Discard(), nil, errors.Errorf("unknown log format %q", cfg.LogFormat)
	}

	zl := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(w), level))
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}
