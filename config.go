package fieldz

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override, e.g. FIELDZ_OUTPUT_PATH.
const EnvPrefix = "FIELDZ"

// Compression names accepted by OutputConfig.Compression.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// Config holds everything needed to wire a JSONLayer to its output.
// Environment names derive from the field path only, e.g. FIELDZ_LOG_LEVEL;
// unprefixed variables such as PATH are never consulted.
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// OutputConfig selects where documents go.
type OutputConfig struct {
	// Path is a file to append to, or "-" for stdout.
	Path        string `yaml:"path"`
	Compression string `yaml:"compression"`
}

// BufferConfig enables batching in front of the output.
// FlushOnRootClose flushes the buffer whenever a root span closes.
type BufferConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FlushInterval    time.Duration `yaml:"flush_interval" split_words:"true"`
	BatchSize        int           `yaml:"batch_size" split_words:"true"`
	QueueSize        int           `yaml:"queue_size" split_words:"true"`
	FlushOnRootClose bool          `yaml:"flush_on_root_close" split_words:"true"`
}

// LogConfig configures the diagnostic logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig names the Prometheus namespace. Empty disables metrics.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Output: OutputConfig{
			Path:        "-",
			Compression: CompressionNone,
		},
		Buffer: BufferConfig{
			Enabled:          false,
			FlushInterval:    time.Second,
			BatchSize:        100,
			QueueSize:        1024,
			FlushOnRootClose: true,
		},
		Log: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Namespace: "fieldz",
		},
	}
}

// LoadConfig starts from Default, applies the YAML file at path if path is
// not empty, then applies FIELDZ_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Output.Path == "" {
		return errors.New("output path is empty")
	}
	switch strings.ToLower(c.Output.Compression) {
	case "", CompressionNone, CompressionZstd:
	default:
		return fmt.Errorf("unknown compression %q", c.Output.Compression)
	}
	if c.Buffer.Enabled {
		if c.Buffer.FlushInterval <= 0 {
			return errors.New("buffer flush interval must be > 0")
		}
		if c.Buffer.BatchSize <= 0 {
			return errors.New("buffer batch size must be > 0")
		}
		if c.Buffer.QueueSize <= 0 {
			return errors.New("buffer queue size must be > 0")
		}
	}
	return nil
}

// BuildSink opens the output and stacks compression and buffering on it
// as configured. Path "-" writes to stdout, os.Stdout when nil. Closing the
// returned sink closes an output file but leaves stdout open.
func (c Config) BuildSink(stdout io.Writer, logger *zap.Logger) (Sink, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var w io.Writer
	if c.Output.Path == "-" {
		if stdout == nil {
			stdout = os.Stdout
		}
		w = nopCloser{stdout}
	} else {
		f, err := os.OpenFile(c.Output.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open output: %w", err)
		}
		w = f
	}

	var sink Sink
	if strings.EqualFold(c.Output.Compression, CompressionZstd) {
		cs, err := NewCompressedSink(w)
		if err != nil {
			if f, ok := w.(io.Closer); ok {
				_ = f.Close()
			}
			return nil, err
		}
		sink = cs
	} else {
		sink = NewWriterSink(w)
	}

	if c.Buffer.Enabled {
		sink = NewBufferedSink(sink, BufferedOptions{
			Logger:        logger,
			FlushInterval: c.Buffer.FlushInterval,
			BatchSize:     c.Buffer.BatchSize,
			QueueSize:     c.Buffer.QueueSize,
		})
	}
	return sink, nil
}

// nopCloser keeps stdout open when the sink closes.
type nopCloser struct {
	io.Writer
}
