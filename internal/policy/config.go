package policy

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tourism-cache/internal/keys"
	"tourism-cache/internal/utils"
)

// OverridesFile is the on-disk shape of a policy override file. Durations
// use Go syntax ("5m", "1h30m"); omitted fields keep the built-in value.
type OverridesFile struct {
	Classes map[string]ClassOverride `yaml:"classes"`
	Domains map[string]string        `yaml:"domains"`
}

// ClassOverride adjusts one volatility class. Pointer fields distinguish
// "absent" from "explicitly zero", which matters for the realtime class's
// zero freshness window.
type ClassOverride struct {
	Freshness          *utils.Duration `yaml:"freshness"`
	Eviction           *utils.Duration `yaml:"eviction"`
	Retries            *int      `yaml:"retries"`
	RefetchOnFocus     *bool     `yaml:"refetch_on_focus"`
	RefetchOnReconnect *bool     `yaml:"refetch_on_reconnect"`
	BackgroundRefetch  *utils.Duration `yaml:"background_refetch"`
}

// Load reads a policy override file and applies it over the built-in table.
// Unknown class names and unknown domains are validation errors.
func Load(path string, logger *zap.Logger) (*Table, error) {
	logger.Info("Loading cache policy overrides", zap.String("path", path))

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy overrides file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var overrides OverridesFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&overrides); err != nil {
		return nil, fmt.Errorf("failed to decode YAML policy overrides: %w", err)
	}

	table, err := Default().Apply(&overrides)
	if err != nil {
		return nil, fmt.Errorf("policy overrides validation failed: %w", err)
	}

	logger.Info("Cache policy overrides loaded",
		zap.Int("class_overrides", len(overrides.Classes)),
		zap.Int("domain_overrides", len(overrides.Domains)))
	return table, nil
}

// Apply returns a copy of the table with the overrides merged in.
func (t *Table) Apply(overrides *OverridesFile) (*Table, error) {
	out := &Table{
		classes: make(map[Class]Policy, len(t.classes)),
		domains: make(map[keys.Domain]Class, len(t.domains)),
	}
	for c, p := range t.classes {
		out.classes[c] = p
	}
	for d, c := range t.domains {
		out.domains[d] = c
	}

	for name, o := range overrides.Classes {
		class := Class(name)
		p, ok := out.classes[class]
		if !ok {
			return nil, fmt.Errorf("override for unknown volatility class %q", name)
		}
		if o.Freshness != nil {
			p.Freshness = time.Duration(*o.Freshness)
		}
		if o.Eviction != nil {
			p.Eviction = time.Duration(*o.Eviction)
		}
		if o.Retries != nil {
			if *o.Retries < 0 {
				return nil, fmt.Errorf("class %q: retries must not be negative", name)
			}
			p.Retries = *o.Retries
		}
		if o.RefetchOnFocus != nil {
			p.RefetchOnFocus = *o.RefetchOnFocus
		}
		if o.RefetchOnReconnect != nil {
			p.RefetchOnReconnect = *o.RefetchOnReconnect
		}
		if o.BackgroundRefetch != nil {
			p.BackgroundRefetch = time.Duration(*o.BackgroundRefetch)
		}
		if p.Eviction < p.Freshness {
			return nil, fmt.Errorf("class %q: eviction window shorter than freshness window", name)
		}
		out.classes[class] = p
	}

	for name, className := range overrides.Domains {
		domain := keys.Domain(name)
		if err := domain.Validate(); err != nil {
			return nil, fmt.Errorf("domain override: %w", err)
		}
		class := Class(className)
		if _, ok := out.classes[class]; !ok {
			return nil, fmt.Errorf("domain %q assigned to unknown volatility class %q", name, className)
		}
		out.domains[domain] = class
	}

	return out, nil
}
