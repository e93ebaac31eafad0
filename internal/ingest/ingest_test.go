package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"briefsmith/internal/blobstore"
	"briefsmith/internal/brief"
	"briefsmith/internal/ingest"
	"briefsmith/internal/services"
)

const aboutPage = `<!doctype html>
<html><head><title>Acme</title><style>body{color:red}</style><script>track()</script></head>
<body>
<header>Site header menu</header>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<article><h1>About Acme</h1><p>Acme operates a regional freight network serving retailers.</p>
<p>The company was founded in 2015 in Des Moines.</p></article>
<footer>Copyright Acme</footer>
</body></html>`

func newSourceServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "briefsmith-test" {
			http.Error(w, "missing agent", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, aboutPage)
	})
	mux.HandleFunc("/press.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "Acme announced a partnership with a national grocery chain.")
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testOptions() ingest.Options {
	return ingest.Options{
		MaxCharsPerSource: 10000,
		ChunkWords:        1500,
		ChunkOverlap:      200,
		UserAgent:         "briefsmith-test",
		Concurrency:       2,
	}
}

func TestIngestProceedsWhenOneOfThreeURLsFails(t *testing.T) {
	server := newSourceServer(t)
	ing := ingest.New(testOptions(), nil, nil)

	result, err := ing.Ingest(context.Background(), ingest.Request{URLs: []string{
		server.URL + "/about",
		server.URL + "/broken",
		server.URL + "/press.txt",
	}})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(result.Sources) != 3 {
		t.Fatalf("expected 3 source results, got %d", len(result.Sources))
	}
	if len(result.Succeeded()) != 2 {
		t.Fatalf("expected 2 successful sources, got %+v", result.Sources)
	}
	if len(result.FailedURLs) != 1 || result.FailedURLs[0] != server.URL+"/broken" {
		t.Fatalf("failed urls = %v", result.FailedURLs)
	}
	if result.Sources[1].Error == "" {
		t.Fatal("expected error recorded on the failed source")
	}
	joined := strings.Join(result.Chunks, "\n")
	for _, want := range []string{"founded in 2015", "national grocery chain"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in chunks %q", want, joined)
		}
	}
	for _, unwanted := range []string{"track()", "Site header menu", "Copyright Acme", "color:red"} {
		if strings.Contains(joined, unwanted) {
			t.Fatalf("did not expect %q in chunks %q", unwanted, joined)
		}
	}
}

func TestIngestAllFailing(t *testing.T) {
	server := newSourceServer(t)
	ing := ingest.New(testOptions(), nil, nil)

	tests := []struct {
		name      string
		urls      []string
		transient bool
	}{
		{name: "server errors", urls: []string{server.URL + "/broken", server.URL + "/broken?again"}, transient: true},
		{name: "not found", urls: []string{server.URL + "/missing", server.URL + "/broken"}, transient: false},
		{name: "invalid url", urls: []string{"ftp://example.test/file"}, transient: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ing.Ingest(context.Background(), ingest.Request{URLs: tc.urls})
			if err == nil {
				t.Fatal("expected error when every source fails")
			}
			if got := services.IsTransient(err); got != tc.transient {
				t.Fatalf("IsTransient = %v, want %v (%v)", got, tc.transient, err)
			}
			if len(result.FailedURLs) != len(tc.urls) {
				t.Fatalf("failed urls = %v", result.FailedURLs)
			}
		})
	}
}

func TestIngestRequiresSources(t *testing.T) {
	_, err := ingest.New(testOptions(), nil, nil).Ingest(context.Background(), ingest.Request{})
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestIngestReadsUpload(t *testing.T) {
	blobs, err := blobstore.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	key := blobstore.Key("s-1", "upload", "notes.md")
	if err := blobs.Put(context.Background(), key, []byte("# Notes\n\nAcme plans to open a second depot.")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	result, err := ingest.New(testOptions(), blobs, nil).Ingest(context.Background(), ingest.Request{UploadKey: key})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(result.Sources) != 1 || result.Sources[0].Kind != brief.SourceUpload || !result.Sources[0].OK() {
		t.Fatalf("sources = %+v", result.Sources)
	}
	if len(result.Chunks) != 1 || !strings.Contains(result.Chunks[0], "second depot") {
		t.Fatalf("chunks = %q", result.Chunks)
	}
}

func TestIngestMissingUploadFails(t *testing.T) {
	blobs, err := blobstore.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	_, err = ingest.New(testOptions(), blobs, nil).Ingest(context.Background(), ingest.Request{UploadKey: "s-1/upload/missing"})
	if err == nil || services.IsTransient(err) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestIngestTruncatesLongSources(t *testing.T) {
	long := strings.Repeat("freight ", 3000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, long)
	}))
	defer server.Close()

	opts := testOptions()
	opts.MaxCharsPerSource = 100
	result, err := ingest.New(opts, nil, nil).Ingest(context.Background(), ingest.Request{URLs: []string{server.URL}})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	src := result.Sources[0]
	if !src.Truncated || src.CharCount > 100 {
		t.Fatalf("source = %+v", src)
	}
}
