// Package relate holds the relationship-invalidation fan-out table: which
// cache keys go stale when one entity changes. The asymmetry is deliberate
// and mirrors which domains embed denormalized copies of other domains'
// data in their list and detail payloads; it cannot be derived from the key
// factory alone.
package relate

import (
	"strings"

	"tourism-cache/internal/keys"
)

// Related returns every cache key prefix that must be invalidated when the
// given entity changes, including the entity's own detail and list keys.
func Related(domain keys.Domain, id string) []keys.Key {
	switch domain {
	case keys.Businesses:
		// Business rows embed nothing from elsewhere, but reviews are
		// keyed under the business they belong to.
		return []keys.Key{
			keys.Businesses.Detail(id),
			keys.Businesses.Lists(),
			keys.BusinessReviews(id),
		}
	case keys.Categories:
		// Business list payloads join in category metadata (display
		// name), so a category change invalidates business lists too.
		// Which lists is refined by CategoryScoped below.
		return []keys.Key{
			keys.Categories.Detail(id),
			keys.Categories.Lists(),
		}
	case keys.TouristSpots:
		return []keys.Key{
			keys.TouristSpots.Detail(id),
			keys.TouristSpots.Lists(),
			keys.SpotReviews(id),
		}
	case keys.Events:
		return []keys.Key{
			keys.Events.Detail(id),
			keys.Events.Lists(),
			keys.EventBookings(id),
		}
	default:
		// No downstream fan-out: nothing embeds this domain's data.
		return []keys.Key{
			domain.Detail(id),
			domain.Lists(),
		}
	}
}

// CategoryScoped reports whether a stored business-list key embeds the
// given category, judged from the canonical filter segment of the key.
// Used to narrow the category fan-out to the business lists actually
// filtered by that category.
func CategoryScoped(storedKey, categoryID string) bool {
	if categoryID == "" {
		return false
	}
	return strings.Contains(storedKey, `"category_id":"`+categoryID+`"`) ||
		strings.Contains(storedKey, `"category":"`+categoryID+`"`)
}
