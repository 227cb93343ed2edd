package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	c := New(time.Second)

	if err := c.Get(context.Background(), server.URL); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	err := c.Get(context.Background(), server.URL+"/missing")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Errorf("expected StatusError 404, got %v", err)
	}

	stats := c.Stats()
	if stats.Requests != 2 || stats.Failures != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestClient_GetUnreachable(t *testing.T) {
	c := New(100 * time.Millisecond)
	if err := c.Get(context.Background(), "http://127.0.0.1:1"); err == nil {
		t.Error("expected error for unreachable host")
	}
}
