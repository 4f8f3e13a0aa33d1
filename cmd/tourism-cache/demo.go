package main

import (
	backendmem "tourism-cache/internal/backend/memory"
)

// seededDemoBackend builds the in-process backend with a small data set so
// the admin surface has something to serve without external services.
func seededDemoBackend() *backendmem.Backend {
	b := backendmem.New()

	b.Seed("categories",
		map[string]any{"id": "c1", "name": "Restaurants", "slug": "restaurants"},
		map[string]any{"id": "c2", "name": "Outdoor", "slug": "outdoor"},
	)
	b.Seed("businesses",
		map[string]any{"id": "b1", "name": "Harbor Grill", "category_id": "c1", "status": "approved"},
		map[string]any{"id": "b2", "name": "Cliffside Kayaks", "category_id": "c2", "status": "approved"},
		map[string]any{"id": "b3", "name": "Night Market Stand", "category_id": "c1", "status": "pending"},
	)
	b.Seed("tourist_spots",
		map[string]any{"id": "s1", "name": "Old Lighthouse", "category_id": "c2"},
	)
	b.Seed("events",
		map[string]any{"id": "e1", "title": "Lantern Festival", "starts_at": "2026-09-12T18:00:00Z"},
	)
	b.Seed("reviews",
		map[string]any{"id": "r1", "business_id": "b1", "rating": 5, "body": "Great views"},
		map[string]any{"id": "r2", "business_id": "b1", "rating": 4, "body": "Slow on weekends"},
	)
	b.Seed("bookings",
		map[string]any{"id": "k1", "event_id": "e1", "user_id": "u1", "status": "pending"},
	)
	b.Seed("users",
		map[string]any{"id": "u1", "name": "Demo Visitor"},
	)

	return b
}
