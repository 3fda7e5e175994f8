package netx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDoJSON(t *testing.T) {
	t.Run("success with body", func(t *testing.T) {
		var gotBody, gotCT, gotMethod string

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotCT = r.Header.Get("Content-Type")
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer ts.Close()

		err := DoJSON(context.Background(), ts.Client(), http.MethodPost, ts.URL+"/profile", map[string]string{"id": "p1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotMethod != http.MethodPost {
			t.Fatalf("method = %q, want POST", gotMethod)
		}
		if gotCT != "application/json" {
			t.Fatalf("Content-Type = %q", gotCT)
		}
		if gotBody != `{"id":"p1"}` {
			t.Fatalf("body = %q", gotBody)
		}
	})

	t.Run("no body", func(t *testing.T) {
		var gotCT string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCT = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		if err := DoJSON(context.Background(), ts.Client(), http.MethodDelete, ts.URL, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotCT != "" {
			t.Fatalf("Content-Type should be empty, got %q", gotCT)
		}
	})

	t.Run("non-2xx -> ErrStatus", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusForbidden)
		}))
		defer ts.Close()

		err := DoJSON(context.Background(), ts.Client(), http.MethodGet, ts.URL, nil)
		var se *ErrStatus
		if !errors.As(err, &se) {
			t.Fatalf("expected *ErrStatus, got %v", err)
		}
		if se.Code != http.StatusForbidden {
			t.Fatalf("code = %d", se.Code)
		}
		if !strings.Contains(se.Body, "nope") {
			t.Fatalf("body = %q", se.Body)
		}
	})

	t.Run("network error", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()

		err := DoJSON(context.Background(), http.DefaultClient, http.MethodGet, ts.URL, nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		var se *ErrStatus
		if errors.As(err, &se) {
			t.Fatalf("got status error for a network failure: %v", err)
		}
	})

	t.Run("unmarshalable body", func(t *testing.T) {
		err := DoJSON(context.Background(), http.DefaultClient, http.MethodPost, "http://127.0.0.1:1", make(chan int))
		if err == nil || !strings.Contains(err.Error(), "marshal request") {
			t.Fatalf("expected marshal error, got %v", err)
		}
	})
}
