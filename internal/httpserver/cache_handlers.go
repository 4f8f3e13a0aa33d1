package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"tourism-cache/internal/client"
	"tourism-cache/internal/errclass"
	"tourism-cache/internal/keys"
)

// handleQuery serves list reads through the cache.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var payload QueryPayload
	if err := s.parseRequest(r, &payload); err != nil {
		s.writeErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if payload.Domain == "" {
		s.writeErrorResponse(w, "Missing required field: domain", http.StatusBadRequest)
		return
	}

	result, err := s.client.Query(r.Context(), client.QueryRequest{
		Domain:     keys.Domain(payload.Domain),
		Filters:    payload.Filters,
		Page:       payload.Page,
		PerPage:    payload.PerPage,
		Cursor:     payload.Cursor,
		OrderBy:    payload.OrderBy,
		Descending: payload.Descending,
		Search:     payload.Search,
		ForceFresh: payload.ForceFresh,
	})
	if err != nil {
		s.writeClassifiedError(w, err)
		return
	}

	s.writeResponse(w, &QueryResponse{
		Success:    true,
		Data:       result.Data,
		Count:      result.Count,
		HasMore:    result.HasMore,
		NextCursor: result.NextCursor,
		FromCache:  result.FromCache,
		Stale:      result.Stale,
		Optimistic: result.Optimistic,
	})
}

// handleDetail serves single-entity reads through the cache.
func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := s.client.Detail(r.Context(), keys.Domain(vars["domain"]), vars["id"])
	if err != nil {
		s.writeClassifiedError(w, err)
		return
	}

	s.writeResponse(w, &DetailResponse{
		Success:    true,
		Data:       result.Data,
		FromCache:  result.FromCache,
		Optimistic: result.Optimistic,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	domain := keys.Domain(mux.Vars(r)["domain"])

	var payload MutatePayload
	if err := s.parseRequest(r, &payload); err != nil {
		s.writeErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !isJSONObject(payload.Data) {
		s.writeErrorResponse(w, "Field data must be a JSON object", http.StatusBadRequest)
		return
	}

	var row []byte
	var err error
	if payload.Optimistic {
		opts, optErr := mutateOptions(domain, payload.ListFilters)
		if optErr != nil {
			s.writeClassifiedError(w, optErr)
			return
		}
		row, err = s.client.CreateOptimistic(r.Context(), domain, payload.Data, opts)
	} else {
		row, err = s.client.Create(r.Context(), domain, payload.Data)
	}
	if err != nil {
		s.writeClassifiedError(w, err)
		return
	}
	s.writeResponse(w, &MutateResponse{Success: true, Data: row})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	domain := keys.Domain(vars["domain"])

	var payload MutatePayload
	if err := s.parseRequest(r, &payload); err != nil {
		s.writeErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if !isJSONObject(payload.Data) {
		s.writeErrorResponse(w, "Field data must be a JSON object", http.StatusBadRequest)
		return
	}

	var row []byte
	var err error
	if payload.Optimistic {
		opts, optErr := mutateOptions(domain, payload.ListFilters)
		if optErr != nil {
			s.writeClassifiedError(w, optErr)
			return
		}
		row, err = s.client.UpdateOptimistic(r.Context(), domain, vars["id"], payload.Data, opts)
	} else {
		row, err = s.client.Update(r.Context(), domain, vars["id"], payload.Data)
	}
	if err != nil {
		s.writeClassifiedError(w, err)
		return
	}
	s.writeResponse(w, &MutateResponse{Success: true, Data: row})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	domain := keys.Domain(vars["domain"])

	var err error
	if r.URL.Query().Get("optimistic") == "true" {
		err = s.client.DeleteOptimistic(r.Context(), domain, vars["id"], client.MutateOptions{})
	} else {
		err = s.client.Delete(r.Context(), domain, vars["id"])
	}
	if err != nil {
		s.writeClassifiedError(w, err)
		return
	}
	s.writeResponse(w, &MutateResponse{Success: true})
}

// handleStats reports the cache occupancy snapshot.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, s.manager.Snapshot())
}

// handleStale lists the keys past their freshness window.
func (s *Server) handleStale(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, map[string]interface{}{
		"stale": s.manager.StaleQueries(),
	})
}

// handleDuplicates reports near-duplicate key groupings.
func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, map[string]interface{}{
		"duplicates": s.manager.DuplicatePatterns(),
	})
}

// handleMemory reports resident bytes per cached query.
func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, map[string]interface{}{
		"bytes_by_query": s.manager.MemoryByQuery(),
	})
}

// handlePrefetch warms the cache for a batch of list queries.
func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	var payloads []QueryPayload
	if err := s.parseRequest(r, &payloads); err != nil {
		s.writeErrorResponse(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if len(payloads) == 0 {
		s.writeErrorResponse(w, "At least one query is required", http.StatusBadRequest)
		return
	}

	reqs := make([]client.QueryRequest, 0, len(payloads))
	for _, p := range payloads {
		reqs = append(reqs, client.QueryRequest{
			Domain:     keys.Domain(p.Domain),
			Filters:    p.Filters,
			Page:       p.Page,
			PerPage:    p.PerPage,
			OrderBy:    p.OrderBy,
			Descending: p.Descending,
		})
	}
	if err := s.manager.Prefetch(r.Context(), s.client, reqs); err != nil {
		s.writeClassifiedError(w, err)
		return
	}
	s.writeResponse(w, map[string]interface{}{"success": true, "warmed": len(reqs)})
}

// handleInvalidate marks a domain stale; with ?id= it applies the
// relationship fan-out for that entity instead.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	domain := keys.Domain(mux.Vars(r)["domain"])

	var touched int
	var err error
	if id := r.URL.Query().Get("id"); id != "" {
		touched, err = s.manager.InvalidateRelated(domain, id)
	} else {
		touched, err = s.manager.InvalidateDomain(domain)
	}
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeResponse(w, &InvalidateResponse{Success: true, Touched: touched})
}

// handleClear empties the store.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.manager.ClearAll()
	s.writeResponse(w, map[string]interface{}{"success": true})
}

// isJSONObject reports whether data holds a JSON object. Absent data and
// JSON null both fail, so mutations never reach the backend without fields.
func isJSONObject(data json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return false
	}
	return obj != nil
}

// mutateOptions resolves the caller's list filters into concrete keys.
func mutateOptions(domain keys.Domain, filters []keys.Filters) (client.MutateOptions, error) {
	opts := client.MutateOptions{}
	for _, f := range filters {
		k, err := domain.List(f)
		if err != nil {
			return client.MutateOptions{}, errclass.New(errclass.Validation, "mutate", err)
		}
		opts.ListKeys = append(opts.ListKeys, k)
	}
	return opts, nil
}
