package httpapi

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

// ── Query parameters ─────────────────────────────────────────────────────────

func pageFromQuery(q url.Values) (store.Page, error) {
	var p store.Page
	for _, f := range []struct {
		name string
		dst  *int
	}{{"limit", &p.Limit}, {"offset", &p.Offset}} {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return store.Page{}, fmt.Errorf("%s must be a non-negative integer", f.name)
		}
		*f.dst = n
	}
	return p.Normalize(), nil
}

func sessionFilterFromQuery(q url.Values) store.SessionFilter {
	return store.SessionFilter{
		VehicleID: q.Get("vehicle_id"),
		Status:    types.SessionStatus(strings.ToUpper(q.Get("status"))),
	}
}

func eventFilterFromQuery(q url.Values) store.EventFilter {
	return store.EventFilter{
		SessionID: q.Get("session_id"),
		VehicleID: q.Get("vehicle_id"),
		VisitorID: q.Get("visitor_id"),
		Kind:      types.EventKind(strings.ToUpper(q.Get("kind"))),
	}
}

// ── Responses ────────────────────────────────────────────────────────────────

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func newListResponse[T any](items []T, total int, p store.Page) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}
}

type healthResponse struct {
	Status string `json:"status"`
}
