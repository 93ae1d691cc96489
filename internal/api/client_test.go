package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"tasklink/internal/domain"
)

// The reconciler issues one goroutine per update against a single shared
// client, so a fresh client must serve concurrent first requests without
// mutating its own state. Run with -race.
func TestClientServesConcurrentUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.Task{ID: 1, Title: "a", Status: "OPEN"})
	}))
	defer srv.Close()

	client := New(srv.URL)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(order int) {
			defer wg.Done()
			u := TaskUpdate{Title: "a", Status: "OPEN", Order: order}
			if _, err := client.UpdateTask(context.Background(), 1, u); err != nil {
				t.Errorf("update: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestAPIErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client := New(srv.URL)
	_, err := client.GetTask(context.Background(), 1)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", apiErr.StatusCode)
	}
}
