package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func localFetcher() *Fetcher {
	f := New("test-agent", nil)
	f.AllowPrivateNetworks = true
	return f
}

func TestFetchObjectRejectsMismatchedId(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		json.NewEncoder(w).Encode(map[string]string{"id": "https://evil.example/other", "type": "Note"})
	}))
	defer srv.Close()

	f := localFetcher()
	_, err := f.FetchObject(context.Background(), srv.URL+"/notes/1", nil)
	if err == nil {
		t.Fatal("expected an error when fetched id does not match requested url")
	}
	ferr, ok := err.(*Error)
	if !ok || ferr.Kind != KindUnexpectedObjectId {
		t.Fatalf("expected UnexpectedObjectId, got %v", err)
	}
}

func TestFetchObjectRejectsMissingId(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		json.NewEncoder(w).Encode(map[string]string{"type": "Note"})
	}))
	defer srv.Close()

	f := localFetcher()
	_, err := f.FetchObject(context.Background(), srv.URL+"/notes/1", nil)
	ferr, ok := err.(*Error)
	if !ok || ferr.Kind != KindNoObjectId {
		t.Fatalf("expected NoObjectId, got %v", err)
	}
}

func TestFetchObjectRejectsWrongContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := localFetcher()
	_, err := f.FetchObject(context.Background(), srv.URL+"/notes/1", nil)
	ferr, ok := err.(*Error)
	if !ok || ferr.Kind != KindUnexpectedContentType {
		t.Fatalf("expected UnexpectedContentType, got %v", err)
	}
}

func TestFetchObjectRejectsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := localFetcher()
	_, err := f.FetchObject(context.Background(), srv.URL+"/notes/1", nil)
	ferr, ok := err.(*Error)
	if !ok || ferr.Kind != KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGuardURLBlocksLoopback(t *testing.T) {
	f := New("test-agent", nil)
	_, err := f.guardURL("http://127.0.0.1:9999/actor")
	ferr, ok := err.(*Error)
	if !ok || ferr.Kind != KindUnsafeUrl {
		t.Fatalf("expected UnsafeUrl for loopback target, got %v", err)
	}
}

func TestGuardURLRespectsFilterBlock(t *testing.T) {
	f := New("test-agent", func(host string) bool {
		return strings.EqualFold(host, "blocked.example")
	})
	_, err := f.guardURL("https://blocked.example/actor")
	ferr, ok := err.(*Error)
	if !ok || ferr.Kind != KindForbidden {
		t.Fatalf("expected Forbidden for filtered host, got %v", err)
	}
}

func TestFetchFileSniffsWhenHeaderIsOctetStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("\x89PNG\r\n\x1a\n"))
	}))
	defer srv.Close()

	f := localFetcher()
	data, mediaType, err := f.FetchFile(context.Background(), srv.URL+"/avatar.png", "", []string{"image/png"}, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	if mediaType != "image/png" {
		t.Fatalf("expected sniffed image/png, got %q", mediaType)
	}
	if len(data) == 0 {
		t.Fatal("expected file bytes")
	}
}

func TestFetchFileRejectsDisallowedType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := localFetcher()
	_, _, err := f.FetchFile(context.Background(), srv.URL+"/page", "", []string{"image/png", "image/jpeg"}, 1<<20)
	ferr, ok := err.(*Error)
	if !ok || ferr.Kind != KindUnexpectedContentType {
		t.Fatalf("expected UnexpectedContentType, got %v", err)
	}
}

func TestFetchFileRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	f := localFetcher()
	_, _, err := f.FetchFile(context.Background(), srv.URL+"/big", "", nil, 1024)
	ferr, ok := err.(*Error)
	if !ok || ferr.Kind != KindResponseTooLarge {
		t.Fatalf("expected ResponseTooLarge, got %v", err)
	}
}

func TestFetchJSONAppendsQueryAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("resource") != "acct:bob@example.com" {
			t.Errorf("expected query to be forwarded, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"subject": "acct:bob@example.com"})
	}))
	defer srv.Close()

	f := localFetcher()
	query := url.Values{"resource": {"acct:bob@example.com"}}
	out, err := f.FetchJSON(context.Background(), srv.URL+"/.well-known/webfinger", query)
	if err != nil {
		t.Fatal(err)
	}
	if out["subject"] != "acct:bob@example.com" {
		t.Fatalf("expected decoded subject, got %+v", out)
	}
}

func TestResponseTooLargeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		big := make([]byte, MaxResponseBytes+1024)
		for i := range big {
			big[i] = ' '
		}
		w.Write(big)
	}))
	defer srv.Close()

	f := localFetcher()
	_, err := f.FetchObject(context.Background(), srv.URL+"/big", nil)
	ferr, ok := err.(*Error)
	if !ok || ferr.Kind != KindResponseTooLarge {
		t.Fatalf("expected ResponseTooLarge, got %v", err)
	}
}
