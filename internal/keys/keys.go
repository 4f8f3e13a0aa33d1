package keys

import (
	"fmt"
	"strings"
)

// Domain is one cacheable entity family. Every cache key belongs to exactly
// one domain.
type Domain string

const (
	Businesses   Domain = "businesses"
	TouristSpots Domain = "tourist_spots"
	Events       Domain = "events"
	Categories   Domain = "categories"
	Bookings     Domain = "bookings"
	Users        Domain = "users"
	Reviews      Domain = "reviews"
	Promotions   Domain = "promotions"
	Analytics    Domain = "analytics"
	Reports      Domain = "reports"
	System       Domain = "system"
)

// Known lists every domain the factory will build keys for. Unknown domains
// are rejected so a typo cannot mint an orphaned cache namespace.
var Known = map[Domain]bool{
	Businesses:   true,
	TouristSpots: true,
	Events:       true,
	Categories:   true,
	Bookings:     true,
	Users:        true,
	Reviews:      true,
	Promotions:   true,
	Analytics:    true,
	Reports:      true,
	System:       true,
}

// Validate reports whether the domain is one the factory knows about.
func (d Domain) Validate() error {
	if !Known[d] {
		return fmt.Errorf("unknown cache domain %q", d)
	}
	return nil
}

// Key is an ordered, hierarchical cache identity. Keys built from the same
// logical query are byte-identical; keys for different queries never collide.
type Key []string

// String joins the key tokens into the canonical string form used by the
// entry store.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// HasPrefix reports whether k sits under the given prefix key. A key is its
// own prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, tok := range prefix {
		if k[i] != tok {
			return false
		}
	}
	return true
}

// All is the root key covering every cached query of the domain.
func (d Domain) All() Key {
	return Key{string(d)}
}

// Lists covers every list-shaped query of the domain regardless of filters.
func (d Domain) Lists() Key {
	return Key{string(d), "list"}
}

// List identifies one filtered list query. Filters are canonicalized so two
// logically equal filter sets produce the same key no matter the caller's
// map or slice ordering.
func (d Domain) List(filters Filters) (Key, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	canon, err := Canonicalize(filters)
	if err != nil {
		return nil, fmt.Errorf("list key for %s: %w", d, err)
	}
	return Key{string(d), "list", canon}, nil
}

// Detail identifies one entity by id.
func (d Domain) Detail(id string) Key {
	return Key{string(d), "detail", id}
}

// Relation identifies a sub-resource hanging off one entity, e.g. the
// reviews of a business.
func (d Domain) Relation(id, rel string) Key {
	return Key{string(d), "detail", id, rel}
}

// BusinessReviews is the reviews collection of one business.
func BusinessReviews(businessID string) Key {
	return Businesses.Relation(businessID, "reviews")
}

// SpotReviews is the reviews collection of one tourist spot.
func SpotReviews(spotID string) Key {
	return TouristSpots.Relation(spotID, "reviews")
}

// EventBookings is the bookings collection of one event.
func EventBookings(eventID string) Key {
	return Events.Relation(eventID, "bookings")
}
