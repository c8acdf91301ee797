package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunCacheReturnsErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error":"cache not initialized"}`))
	}))
	defer srv.Close()

	cacheAddr = srv.URL
	if err := runCache(cacheCmd, []string{"refresh"}); err == nil {
		t.Fatalf("expected an error for a 5xx response, got nil")
	}
}

func TestRunCacheSucceedsOnOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"status":"refreshed"}`))
	}))
	defer srv.Close()

	cacheAddr = srv.URL
	if err := runCache(cacheCmd, []string{"refresh"}); err != nil {
		t.Fatalf("expected nil error for a 200 response, got %v", err)
	}
}
