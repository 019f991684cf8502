package preview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/observability"
	"github.com/matzehuels/svgicon/pkg/pipeline"
)

const clipped = `<svg width="24" height="24"><defs><clipPath id="a"><rect width="24" height="24"/></clipPath></defs><path clip-path="url(#a)" d="M2 2H22V22H2z"/></svg>`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func newServer(t *testing.T, src string) *Server {
	t.Helper()
	s, err := New(Config{
		Addr:     "127.0.0.1:0",
		Compiler: pipeline.NewRunner(nil, nil),
		Options:  pipeline.Options{Source: src, Workers: 2},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewValidation(t *testing.T) {
	runner := pipeline.NewRunner(nil, nil)
	tests := []struct {
		name string
		cfg  Config
		code errors.Code
	}{
		{"no addr", Config{Compiler: runner, Options: pipeline.Options{Source: "s"}}, errors.ErrCodeInvalidConfig},
		{"no compiler", Config{Addr: ":0", Options: pipeline.Options{Source: "s"}}, errors.ErrCodeInvalidInput},
		{"no source", Config{Addr: ":0", Compiler: runner}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, tt.code) {
				t.Errorf("New error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestUnavailableBeforeRefresh(t *testing.T) {
	s := newServer(t, writeTree(t, map[string]string{"a.svg": clipped}))
	h := s.Handler()

	if rec := get(t, h, "/"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET / = %d, want 503", rec.Code)
	}
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusNoContent {
		t.Errorf("GET /healthz = %d, want 204", rec.Code)
	}
}

func TestGallery(t *testing.T) {
	src := writeTree(t, map[string]string{
		"a.svg":        clipped,
		"arrows/b.svg": clipped,
		"bad.svg":      `<svg><path></svg>`,
	})
	s := newServer(t, src)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	rec := get(t, s.Handler(), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"2 icons", `href="/icons/arrows/b.svg"`, "bad.svg"} {
		if !strings.Contains(body, want) {
			t.Errorf("gallery missing %q", want)
		}
	}

	// every icon is inlined into one document, so ids must not repeat
	seen := map[string]bool{}
	for _, m := range regexp.MustCompile(`<clipPath id="([^"]+)"`).FindAllStringSubmatch(body, -1) {
		if seen[m[1]] {
			t.Errorf("duplicate id %q in gallery", m[1])
		}
		seen[m[1]] = true
	}
	if len(seen) != 2 {
		t.Errorf("clipPath ids = %v, want 2", seen)
	}
}

func TestListing(t *testing.T) {
	src := writeTree(t, map[string]string{
		"a.svg":   clipped,
		"bad.svg": `<svg><path></svg>`,
	})
	s := newServer(t, src)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	rec := get(t, s.Handler(), "/icons.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /icons.json = %d", rec.Code)
	}
	var out Listing
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Icons) != 1 || out.Icons[0].Name != "a" || out.Icons[0].URL != "/icons/a.svg" {
		t.Errorf("icons = %+v", out.Icons)
	}
	if out.Icons[0].Width != 24 || out.Icons[0].ViewBox != "0 0 24 24" {
		t.Errorf("sizing = %+v", out.Icons[0])
	}
	if len(out.Skipped) != 1 || out.Skipped[0].Path != "bad.svg" || out.Skipped[0].Code != string(errors.ErrCodeSanitize) {
		t.Errorf("skipped = %+v", out.Skipped)
	}
}

func TestIconRoute(t *testing.T) {
	s := newServer(t, writeTree(t, map[string]string{"arrows/left.svg": clipped}))
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	h := s.Handler()

	tests := []struct {
		path   string
		status int
	}{
		{"/icons/arrows/left.svg", http.StatusOK},
		{"/icons/arrows/left", http.StatusNotFound},
		{"/icons/left.svg", http.StatusNotFound},
		{"/icons/arrows/right.svg", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, h, tt.path)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
				t.Errorf("Content-Type = %q", ct)
			}
			if body := rec.Body.String(); !strings.HasPrefix(body, `<svg xmlns="http://www.w3.org/2000/svg" width="24"`) {
				t.Errorf("body = %q", body)
			}
		})
	}
}

func TestIconURL(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"a", "/icons/a.svg"},
		{"arrows/left", "/icons/arrows/left.svg"},
		{"sp ace", "/icons/sp%20ace.svg"},
		{"c#d/e?f", "/icons/c%23d/e%3Ff.svg"},
		{"50%", "/icons/50%25.svg"},
	}
	for _, tt := range tests {
		if got := iconURL(tt.name); got != tt.want {
			t.Errorf("iconURL(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestListedURLsResolve(t *testing.T) {
	names := []string{"sp ace", "hash#tag", "q?x", "co,ma", "50%", "dir#1/in side"}
	files := map[string]string{}
	for _, n := range names {
		files[n+".svg"] = clipped
	}
	s := newServer(t, writeTree(t, files))
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	h := s.Handler()

	var out Listing
	if err := json.Unmarshal(get(t, h, "/icons.json").Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Icons) != len(names) {
		t.Fatalf("icons = %+v, skipped = %+v", out.Icons, out.Skipped)
	}
	for _, ic := range out.Icons {
		if rec := get(t, h, ic.URL); rec.Code != http.StatusOK {
			t.Errorf("GET %s (icon %q) = %d", ic.URL, ic.Name, rec.Code)
		}
	}

	gallery := get(t, h, "/").Body.String()
	if !strings.Contains(gallery, `href="/icons/hash%23tag.svg"`) {
		t.Errorf("gallery link for hash#tag is not escaped")
	}
}

func TestRefreshKeepsSnapshotOnError(t *testing.T) {
	src := writeTree(t, map[string]string{"a.svg": clipped})
	s := newServer(t, src)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := os.RemoveAll(src); err != nil {
		t.Fatal(err)
	}
	if err := s.Refresh(context.Background()); !errors.Is(err, errors.ErrCodeDiscovery) {
		t.Fatalf("Refresh error = %v, want %s", err, errors.ErrCodeDiscovery)
	}
	if rec := get(t, s.Handler(), "/icons/a.svg"); rec.Code != http.StatusOK {
		t.Errorf("previous snapshot not served: %d", rec.Code)
	}
}

type recordingHooks struct {
	mu        sync.Mutex
	requests  []string
	responses []int
}

func (h *recordingHooks) OnRequest(_ context.Context, method, path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, method+" "+path)
}

func (h *recordingHooks) OnResponse(_ context.Context, _, _ string, status int, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, status)
}

func TestPreviewHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetPreviewHooks(hooks)
	t.Cleanup(observability.Reset)

	s := newServer(t, writeTree(t, map[string]string{"a.svg": clipped}))
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	h := s.Handler()
	get(t, h, "/icons/a.svg")
	get(t, h, "/icons/missing.svg")

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	if len(hooks.requests) != 2 || hooks.requests[0] != "GET /icons/a.svg" {
		t.Errorf("requests = %v", hooks.requests)
	}
	if len(hooks.responses) != 2 || hooks.responses[0] != http.StatusOK || hooks.responses[1] != http.StatusNotFound {
		t.Errorf("responses = %v", hooks.responses)
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	s := newServer(t, writeTree(t, map[string]string{"a.svg": clipped}))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
