package policy

import (
	"fmt"
	"time"

	"tourism-cache/internal/keys"
)

// Class is a data-volatility class. Every domain is assigned one class and
// inherits its cache policy; individual queries never carry bespoke policies.
type Class string

const (
	ClassStatic   Class = "static"
	ClassDynamic  Class = "dynamic"
	ClassRealtime Class = "realtime"
	ClassUser     Class = "user"

	ClassAnalytics Class = "analytics"
	ClassHeavy     Class = "heavy"
	ClassSystem    Class = "system"
	ClassSearch    Class = "search"
)

// Policy bundles the cache behavior of one volatility class.
type Policy struct {
	// Freshness is how long a cached value is served without a refetch.
	// Zero means always stale: the realtime class relies on the
	// subscription bridge for correctness, not on freshness windows.
	Freshness time.Duration
	// Eviction is how long an unused entry stays resident before the
	// store drops it.
	Eviction time.Duration
	// Retries is the number of retries after the initial attempt for
	// transient network failures.
	Retries int

	RefetchOnFocus     bool
	RefetchOnReconnect bool

	// BackgroundRefetch is the bounded poll fallback for realtime data
	// when the change feed is down. Zero disables background polling.
	BackgroundRefetch time.Duration
}

// Table binds volatility classes to presets and domains to classes. The
// built-in table is the contract; deployments may override durations and
// domain assignments from YAML (see Load).
type Table struct {
	classes map[Class]Policy
	domains map[keys.Domain]Class
}

var presets = map[Class]Policy{
	ClassStatic: {
		Freshness: time.Hour,
		Eviction:  4 * time.Hour,
		Retries:   2,
	},
	ClassDynamic: {
		Freshness:          5 * time.Minute,
		Eviction:           30 * time.Minute,
		Retries:            3,
		RefetchOnFocus:     true,
		RefetchOnReconnect: true,
	},
	ClassRealtime: {
		Freshness:          0,
		Eviction:           5 * time.Minute,
		Retries:            1,
		RefetchOnFocus:     true,
		RefetchOnReconnect: true,
		BackgroundRefetch:  30 * time.Second,
	},
	ClassUser: {
		Freshness: 15 * time.Minute,
		Eviction:  time.Hour,
		Retries:   2,
	},
	ClassAnalytics: {
		Freshness: 10 * time.Minute,
		Eviction:  2 * time.Hour,
		Retries:   1,
	},
	ClassHeavy: {
		Freshness: 30 * time.Minute,
		Eviction:  2 * time.Hour,
		Retries:   1,
	},
	ClassSystem: {
		Freshness: 2 * time.Hour,
		Eviction:  24 * time.Hour,
		Retries:   2,
	},
	ClassSearch: {
		Freshness: 2 * time.Minute,
		Eviction:  10 * time.Minute,
		Retries:   1,
	},
}

var domainClasses = map[keys.Domain]Class{
	keys.Categories:   ClassStatic,
	keys.Businesses:   ClassDynamic,
	keys.TouristSpots: ClassDynamic,
	keys.Events:       ClassDynamic,
	keys.Reviews:      ClassDynamic,
	keys.Promotions:   ClassDynamic,
	keys.Bookings:     ClassRealtime,
	keys.Users:        ClassUser,
	keys.Analytics:    ClassAnalytics,
	keys.Reports:      ClassHeavy,
	keys.System:       ClassSystem,
}

// Default returns a table holding the built-in presets and domain
// assignments.
func Default() *Table {
	classes := make(map[Class]Policy, len(presets))
	for c, p := range presets {
		classes[c] = p
	}
	domains := make(map[keys.Domain]Class, len(domainClasses))
	for d, c := range domainClasses {
		domains[d] = c
	}
	return &Table{classes: classes, domains: domains}
}

// ForClass returns the preset for a volatility class. An unknown class is a
// configuration error and fails fast rather than falling back to a default
// that would mask a mis-tagged query.
func (t *Table) ForClass(c Class) (Policy, error) {
	p, ok := t.classes[c]
	if !ok {
		return Policy{}, fmt.Errorf("unknown volatility class %q", c)
	}
	return p, nil
}

// ClassForDomain returns the volatility class assigned to a domain.
func (t *Table) ClassForDomain(d keys.Domain) (Class, error) {
	c, ok := t.domains[d]
	if !ok {
		return "", fmt.Errorf("no volatility class assigned to domain %q", d)
	}
	return c, nil
}

// ForDomain resolves a domain straight to its policy.
func (t *Table) ForDomain(d keys.Domain) (Policy, error) {
	c, err := t.ClassForDomain(d)
	if err != nil {
		return Policy{}, err
	}
	return t.ForClass(c)
}
