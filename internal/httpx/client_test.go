package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/payload"
)

func TestGetJSONDoesNotRetryServerError(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"x"}`))
	}))
	defer srv.Close()

	client := New(2 * time.Second)
	var out map[string]any
	err := client.GetJSON(context.Background(), srv.URL, payload.Object(), &out)
	if err == nil {
		t.Fatal("expected error")
	}
	if clierr.TagOf(err) != clierr.TagAPIError {
		t.Fatalf("expected API_ERROR, got %s (%v)", clierr.TagOf(err), err)
	}
	if atomic.LoadInt32(&count) != 1 {
		t.Fatalf("expected a single attempt, got %d", count)
	}
}

func TestGetJSONShapeMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"not a list"}`))
	}))
	defer srv.Close()

	client := New(2 * time.Second)
	var out []map[string]any
	err := client.GetJSON(context.Background(), srv.URL, payload.Array(), &out)
	if clierr.TagOf(err) != clierr.TagDataFormat {
		t.Fatalf("expected DATA_FORMAT_ERROR, got %v", err)
	}
}

func TestGetJSONNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := New(2*time.Second).GetJSON(context.Background(), srv.URL, payload.Object(), &map[string]any{})
	if clierr.TagOf(err) != clierr.TagNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestGetJSONTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := New(50*time.Millisecond).GetJSON(context.Background(), srv.URL, payload.Object(), &map[string]any{})
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeTimeout {
		t.Fatalf("expected timeout code, got %v", err)
	}
}
