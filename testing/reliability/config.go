package reliability

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ReliabilityConfig holds configuration for reliability testing.
// Values come from FIELDZ_RELIABILITY_* environment variables.
type ReliabilityConfig struct {
	// Level is "basic" or "stress"; empty skips the suites.
	Level string
	// Duration bounds the stress tests.
	Duration time.Duration `default:"30s"`
	// MaxGoroutines caps concurrent workers.
	MaxGoroutines int `split_words:"true" default:"100"`
	// MaxDepth is the deepest span chain built.
	MaxDepth int `split_words:"true" default:"500"`
}

// getReliabilityConfig reads configuration from the environment.
// A malformed variable fails the test.
func getReliabilityConfig(t *testing.T) ReliabilityConfig {
	t.Helper()
	var config ReliabilityConfig
	if err := envconfig.Process("FIELDZ_RELIABILITY", &config); err != nil {
		t.Fatalf("reliability config: %v", err)
	}
	return config
}
