// Package config loads voxl's runtime tunables from a YAML file: the
// VM's stack sizes (§4.8.a) and the allocator's GC policy (§4.4/§4.5),
// plus the module search path the CLI's filesystem resolver walks.
// Nothing in pkg/vm or pkg/alloc reads a file itself — cmd/voxl loads
// a Config once at startup and passes the resolved values in.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kristofer/voxl/pkg/alloc"
	"github.com/kristofer/voxl/pkg/vm"
)

// Config is voxl.yaml's shape. Every field is optional; zero values
// fall back to Default's.
type Config struct {
	VM   VMConfig `yaml:"vm"`
	GC   GCConfig `yaml:"gc"`
	Path []string `yaml:"module_path"`
}

// VMConfig mirrors vm.Config (§4.8.a: "Config-overridable").
type VMConfig struct {
	ValueStackSize   int `yaml:"value_stack_size"`
	CallStackSize    int `yaml:"call_stack_size"`
	HandlerStackSize int `yaml:"handler_stack_size"`
}

// GCConfig mirrors alloc.Config (§4.4: growth factor and minimum
// threshold before the first collection, §4.5's GC-stress knob for
// shaking out marking bugs by collecting before every allocation).
type GCConfig struct {
	GrowthFactor   int64 `yaml:"growth_factor"`
	MinThresholdKB int64 `yaml:"min_threshold_kb"`
	Stress         bool  `yaml:"stress"`
	Log            bool  `yaml:"log"`
}

// Default returns voxl's built-in tunables, used when no voxl.yaml is
// found or a field is left unset.
func Default() Config {
	vc := vm.DefaultConfig()
	ac := alloc.DefaultConfig()
	return Config{
		VM: VMConfig{
			ValueStackSize:   vc.ValueStackSize,
			CallStackSize:    vc.CallStackSize,
			HandlerStackSize: vc.HandlerStackSize,
		},
		GC: GCConfig{
			GrowthFactor:   ac.GrowthFactor,
			MinThresholdKB: ac.MinThreshold / 1024,
			Stress:         ac.Stress,
			Log:            ac.GCLog,
		},
		Path: []string{"."},
	}
}

// Load reads and merges path over Default(). A missing file is not an
// error — voxl runs fine on defaults alone.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "reading config %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %q", path)
	}
	if len(cfg.Path) == 0 {
		cfg.Path = []string{"."}
	}
	return cfg, nil
}

// ToVMConfig converts to the vm.Config New expects.
func (c Config) ToVMConfig() vm.Config {
	return vm.Config{
		ValueStackSize:   c.VM.ValueStackSize,
		CallStackSize:    c.VM.CallStackSize,
		HandlerStackSize: c.VM.HandlerStackSize,
	}
}

// ToAllocConfig converts to the alloc.Config New expects.
func (c Config) ToAllocConfig() alloc.Config {
	return alloc.Config{
		GrowthFactor: c.GC.GrowthFactor,
		MinThreshold: c.GC.MinThresholdKB * 1024,
		Stress:       c.GC.Stress,
		GCLog:        c.GC.Log,
	}
}
