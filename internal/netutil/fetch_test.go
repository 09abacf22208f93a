package netutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchBodyEnforcesMaxSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	_, err := FetchBody(t.Context(), srv.Client(), srv.URL, 5)
	if err == nil {
		t.Fatalf("expected error for body exceeding max size")
	}
}

func TestFetchBodyComputesSHA256(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	res, err := FetchBody(t.Context(), srv.Client(), srv.URL, 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if res.SHA256 != want {
		t.Fatalf("got %s, want %s", res.SHA256, want)
	}
}
