// Package config loads network settings from YAML.
//
// Example:
//
//	log_level: warn
//	policy: fail-fast
//	grace_period: 2s
//	budget: 50ms
//	queue:
//	  capacity: 16
//	  overflow: block
//	modules:
//	  mic:
//	    queue:
//	      capacity: 4
//	      overflow: drop-oldest
//	  asr:
//	    budget: 200ms
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"pipelined.dev/incremental"
	"pipelined.dev/incremental/log"
)

type (
	// Config holds network settings.
	Config struct {
		LogLevel    string            `yaml:"log_level"`
		Policy      string            `yaml:"policy"`
		GracePeriod time.Duration     `yaml:"grace_period"`
		Budget      time.Duration     `yaml:"budget"`
		Queue       Queue             `yaml:"queue"`
		Modules     map[string]Module `yaml:"modules"`
	}

	// Queue holds inbound queue settings. Zero capacity means unbounded.
	Queue struct {
		Capacity int    `yaml:"capacity"`
		Overflow string `yaml:"overflow"`
	}

	// Module holds per-module overrides, modules are matched by name.
	Module struct {
		Budget time.Duration `yaml:"budget"`
		Queue  *Queue        `yaml:"queue"`
	}
)

var (
	policies = map[string]incremental.Policy{
		"":                            incremental.Isolate,
		incremental.Isolate.String():  incremental.Isolate,
		incremental.FailFast.String(): incremental.FailFast,
	}
	overflows = map[string]incremental.Overflow{
		"":                              incremental.Block,
		incremental.Block.String():      incremental.Block,
		incremental.DropOldest.String(): incremental.DropOldest,
	}
)

// Load reads the YAML configuration file at path and returns validated
// config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML config from r and validates it. Unknown
// fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns
// a joined error listing all failures.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.LogLevel != "" {
		if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log_level %q is invalid: %w", cfg.LogLevel, err))
		}
	}
	if _, ok := policies[cfg.Policy]; !ok {
		errs = append(errs, fmt.Errorf("policy %q is invalid; valid values: isolate, fail-fast", cfg.Policy))
	}
	if cfg.GracePeriod < 0 {
		errs = append(errs, fmt.Errorf("grace_period %v is negative", cfg.GracePeriod))
	}
	if cfg.Budget < 0 {
		errs = append(errs, fmt.Errorf("budget %v is negative", cfg.Budget))
	}
	errs = append(errs, validateQueue("queue", cfg.Queue)...)

	for _, name := range sortedNames(cfg.Modules) {
		m := cfg.Modules[name]
		prefix := fmt.Sprintf("modules.%s", name)
		if m.Budget < 0 {
			errs = append(errs, fmt.Errorf("%s.budget %v is negative", prefix, m.Budget))
		}
		if m.Queue != nil {
			errs = append(errs, validateQueue(prefix+".queue", *m.Queue)...)
		}
	}
	return errors.Join(errs...)
}

func validateQueue(prefix string, q Queue) []error {
	var errs []error
	if q.Capacity < 0 {
		errs = append(errs, fmt.Errorf("%s.capacity %d is negative", prefix, q.Capacity))
	}
	if _, ok := overflows[q.Overflow]; !ok {
		errs = append(errs, fmt.Errorf("%s.overflow %q is invalid; valid values: block, drop-oldest", prefix, q.Overflow))
	}
	return errs
}

// Options converts config into network options. Module overrides are
// applied to provided modules matched by name. Overrides of modules that
// weren't provided result in error.
func (cfg *Config) Options(modules ...incremental.Module) ([]incremental.Option, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	logger, err := log.WithLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	options := []incremental.Option{
		incremental.WithLogger(logger),
		incremental.WithPolicy(policies[cfg.Policy]),
		incremental.WithGracePeriod(cfg.GracePeriod),
		incremental.WithBudget(cfg.Budget),
		incremental.WithQueue(cfg.Queue.Capacity, overflows[cfg.Queue.Overflow]),
	}

	byName := make(map[string]incremental.Module, len(modules))
	for _, m := range modules {
		byName[m.Name()] = m
	}
	var errs []error
	for _, name := range sortedNames(cfg.Modules) {
		m, ok := byName[name]
		if !ok {
			errs = append(errs, fmt.Errorf("modules.%s: module not found", name))
			continue
		}
		override := cfg.Modules[name]
		if override.Budget > 0 {
			options = append(options, incremental.WithModuleBudget(m, override.Budget))
		}
		if q := override.Queue; q != nil {
			options = append(options, incremental.WithInbox(m, q.Capacity, overflows[q.Overflow]))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return options, nil
}

func sortedNames(modules map[string]Module) []string {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
