package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRunCacheReportsStatusOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"status":"disabled"}`))
	}))
	defer srv.Close()

	oldAddr, oldClient := addr, httpClient
	addr = srv.URL
	httpClient = &http.Client{Timeout: 5 * time.Second}
	defer func() { addr, httpClient = oldAddr, oldClient }()

	if err := runCache(cacheCmd, []string{"off"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestRunCacheReturnsErrorOnFailureFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"already refreshing"}`))
	}))
	defer srv.Close()

	oldAddr, oldClient := addr, httpClient
	addr = srv.URL
	httpClient = &http.Client{Timeout: 5 * time.Second}
	defer func() { addr, httpClient = oldAddr, oldClient }()

	if err := runCache(cacheCmd, []string{"refresh"}); err == nil {
		t.Fatal("expected an error when success=false")
	}
}
