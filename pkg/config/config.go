package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sre-norns/vellum/pkg/preview"
)

var ErrUnknownLogLevel = fmt.Errorf("unknown log level")

type LogConfig struct {
	LogLevel  string `help:"Minimal level of log messages to output" enum:"debug,info,warn,error" default:"info" env:"LOG_LEVEL"`
	LogFormat string `help:"Log output format" enum:"logfmt,json" default:"logfmt" env:"LOG_FORMAT"`
}

func levelOption(name string) (level.Option, error) {
	switch name {
	case "debug":
		return level.AllowDebug(), nil
	case "", "info":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownLogLevel, name)
}

// NewLogger creates a leveled, timestamped logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) (log.Logger, error) {
	option, err := levelOption(c.LogLevel)
	if err != nil {
		return nil, err
	}

	var logger log.Logger
	if c.LogFormat == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}

	logger = level.NewFilter(logger, option)
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller), nil
}

// LoadEnv populates the process environment from dotenv files. Missing files are skipped,
// variables already set are not overridden.
func LoadEnv(filenames ...string) error {
	for _, filename := range filenames {
		if _, err := os.Stat(filename); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(filename); err != nil {
			return fmt.Errorf("failed to load environment from %q: %w", filename, err)
		}
	}

	return nil
}

// LoadInitialSettings reads session initial settings from a YAML (or JSON) file.
// Fields missing from the file keep their default values.
func LoadInitialSettings(filename string) (preview.InitialSettings, error) {
	result := preview.DefaultInitialSettings()
	if filename == "" {
		return result, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return result, fmt.Errorf("failed to read initial settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("failed to parse initial settings %q: %w", filename, err)
	}

	return result, nil
}
