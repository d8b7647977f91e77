package restclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchParsesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Fatalf("missing symbol query param: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"lastUpdateId":100,"bids":[["10","1"]],"asks":[["11","1"]]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 1000)
	snap, err := c.Fetch(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if snap.LastUpdateID != 100 {
		t.Fatalf("LastUpdateID = %d, want 100", snap.LastUpdateID)
	}
	if len(snap.Bids) != 1 || snap.Bids[0][0] != "10" {
		t.Fatalf("Bids = %v", snap.Bids)
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 1000)
	if _, err := c.Fetch(context.Background(), "BTCUSDT"); err == nil {
		t.Fatalf("expected an error for a 500 response")
	}
}
