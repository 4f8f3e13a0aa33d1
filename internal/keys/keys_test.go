package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomain_List(t *testing.T) {
	tests := []struct {
		name      string
		domain    Domain
		filters   Filters
		wantKey   string
		wantError bool
	}{
		{
			name:    "basic filters",
			domain:  Businesses,
			filters: Filters{"status": "pending", "page": 1},
			wantKey: `businesses:list:{"page":1,"status":"pending"}`,
		},
		{
			name:    "empty filters",
			domain:  Events,
			filters: nil,
			wantKey: "events:list:{}",
		},
		{
			name:    "array filter sorted",
			domain:  TouristSpots,
			filters: Filters{"ids": []string{"b", "a"}},
			wantKey: `tourist_spots:list:{"ids":["a","b"]}`,
		},
		{
			name:      "unknown domain",
			domain:    Domain("giftshops"),
			filters:   Filters{"page": 1},
			wantError: true,
		},
		{
			name:      "unsupported filter value",
			domain:    Businesses,
			filters:   Filters{"fn": func() {}},
			wantError: true,
		},
		{
			name:      "nested array in array",
			domain:    Businesses,
			filters:   Filters{"bad": []any{[]any{"x"}}},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := tt.domain.List(tt.filters)
			if tt.wantError {
				require.Error(t, err)
				assert.Nil(t, key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key.String())
		})
	}
}

func TestDomain_List_Determinism(t *testing.T) {
	// Same logical query, different insertion order and array order.
	k1, err := Businesses.List(Filters{"status": "pending", "page": 1, "ids": []string{"x", "y"}})
	require.NoError(t, err)
	k2, err := Businesses.List(Filters{"ids": []string{"y", "x"}, "page": 1, "status": "pending"})
	require.NoError(t, err)
	assert.Equal(t, k1.String(), k2.String())

	// Integral float and int key identically (JSON round-trips numbers as float64).
	k3, err := Businesses.List(Filters{"page": float64(1), "status": "pending", "ids": []string{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, k1.String(), k3.String())
}

func TestDomain_List_Distinctness(t *testing.T) {
	k1, err := Businesses.List(Filters{"status": "pending"})
	require.NoError(t, err)
	k2, err := Businesses.List(Filters{"status": "approved"})
	require.NoError(t, err)
	k3, err := Businesses.List(Filters{"status": "pending", "page": 2})
	require.NoError(t, err)

	assert.NotEqual(t, k1.String(), k2.String())
	assert.NotEqual(t, k1.String(), k3.String())
	assert.NotEqual(t, k2.String(), k3.String())
}

func TestDomain_List_NestedFilters(t *testing.T) {
	k1, err := Events.List(Filters{"where": map[string]any{"b": 2, "a": 1}})
	require.NoError(t, err)
	k2, err := Events.List(Filters{"where": map[string]any{"a": 1, "b": 2}})
	require.NoError(t, err)
	assert.Equal(t, k1.String(), k2.String())
}

func TestKey_Hierarchy(t *testing.T) {
	assert.Equal(t, "businesses", Businesses.All().String())
	assert.Equal(t, "businesses:list", Businesses.Lists().String())
	assert.Equal(t, "businesses:detail:42", Businesses.Detail("42").String())
	assert.Equal(t, "businesses:detail:42:reviews", BusinessReviews("42").String())
}

func TestKey_HasPrefix(t *testing.T) {
	detail := Businesses.Detail("42")
	list, err := Businesses.List(Filters{"page": 1})
	require.NoError(t, err)

	assert.True(t, detail.HasPrefix(Businesses.All()))
	assert.True(t, list.HasPrefix(Businesses.Lists()))
	assert.True(t, detail.HasPrefix(detail))
	assert.False(t, detail.HasPrefix(Businesses.Lists()))
	assert.False(t, Businesses.All().HasPrefix(detail))
	assert.False(t, list.HasPrefix(Users.Lists()))
}
