package vm

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the tunables described in §6 (flags) plus heap sizing
// knobs. It is decoded from a TOML file the same way the project
// manifest format is, with the same "toml:" tag convention.
type Config struct {
	Heap  HeapConfig  `toml:"heap"`
	Debug DebugConfig `toml:"debug"`
}

// HeapConfig sizes the two-space heap and old-space growth policy.
type HeapConfig struct {
	// SemiSpaceSize is the initial size, in words, of each new-space
	// semi-space.
	SemiSpaceSize int `toml:"semi-space-size"`

	// OldSpaceGrowthFactor multiplies old-space's budget when
	// AdjustOldAllocationBudget finds old-space at least half full.
	OldSpaceGrowthFactor float64 `toml:"old-space-growth-factor"`

	// PointlessnessThreshold parameterizes evaluate_pointlessness
	// (§9 Open Question): an old-space cycle that frees less than this
	// fraction of the words old-space held before it is judged
	// "pointless", and CollectOldSpace then leaves the hard-limit flag
	// set. The result does not change which strategy the next cycle
	// uses; sweep and compact always alternate.
	PointlessnessThreshold float64 `toml:"pointlessness-threshold"`

	// ReapIntervalSeconds is how often, in seconds, the registry GC
	// (Component K) sweeps terminated process/port bookkeeping,
	// independent of collect_garbage.
	ReapIntervalSeconds int `toml:"reap-interval-seconds"`
}

// DebugConfig holds the three flags named in §6.
type DebugConfig struct {
	PrintHeapStatistics    bool `toml:"print-heap-statistics"`
	PrintProgramStatistics bool `toml:"print-program-statistics"`
	ValidateHeaps          bool `toml:"validate-heaps"`
}

// DefaultConfig returns the configuration used when no file is loaded.
func DefaultConfig() *Config {
	return &Config{
		Heap: HeapConfig{
			SemiSpaceSize:          1 << 16, // 64k words
			OldSpaceGrowthFactor:   1.5,
			PointlessnessThreshold: 0.5,
			ReapIntervalSeconds:    30,
		},
	}
}

// LoadConfig parses a core.toml configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return cfg, nil
}
