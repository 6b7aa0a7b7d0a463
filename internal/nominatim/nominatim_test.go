package nominatim

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReverse(t *testing.T) {
	t.Parallel()

	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		if r.URL.Path != "/reverse" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("format") != "jsonv2" {
			t.Errorf("expected jsonv2, got %q", r.URL.Query().Get("format"))
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("zoom") == "18" {
			if r.URL.Query().Get("addressdetails") != "1" {
				t.Error("street-zoom lookup must request address details")
			}
			_, _ = w.Write([]byte(`{"name": "Blue Bottle Coffee", "display_name": "ignored here"}`))
			return
		}
		_, _ = w.Write([]byte(`{"display_name": "300 Webster St, Oakland, California, USA"}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, UserAgent: "snaplens-test/1.0"}
	place, err := c.Reverse(context.Background(), 37.8, -122.27)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if place.DisplayName != "300 Webster St, Oakland, California, USA" {
		t.Fatalf("unexpected display name %q", place.DisplayName)
	}
	if place.Business != "Blue Bottle Coffee" {
		t.Fatalf("unexpected business %q", place.Business)
	}
	if len(agents) != 2 {
		t.Fatalf("expected two lookups, got %d", len(agents))
	}
	for _, a := range agents {
		if a != "snaplens-test/1.0" {
			t.Fatalf("missing user agent, got %q", a)
		}
	}
}

func TestReverseFallsBackToAmenityThenShop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		document string
		want     string
	}{
		{"amenity", `{"address": {"amenity": "Public Library"}}`, "Public Library"},
		{"shop", `{"address": {"shop": "Bookstore"}}`, "Bookstore"},
		{"nothing nearby", `{}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("zoom") == "18" {
					_, _ = w.Write([]byte(tt.document))
					return
				}
				_, _ = w.Write([]byte(`{"display_name": "somewhere"}`))
			}))
			defer srv.Close()

			place, err := (&Client{BaseURL: srv.URL}).Reverse(context.Background(), 1, 2)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if place.Business != tt.want {
				t.Fatalf("business: want %q got %q", tt.want, place.Business)
			}
		})
	}
}

func TestReverseErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := (&Client{BaseURL: srv.URL}).Reverse(context.Background(), 1, 2); err == nil {
		t.Fatal("expected an error on a non-2xx response")
	}
}
