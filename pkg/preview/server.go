// Package preview serves compiled icons over HTTP for inspection.
//
// The gallery page inlines every icon into a single HTML document, which is
// how icons end up side by side in a real application. Broken references
// between icons show up there first.
//
// Routes:
//
//	GET /                 gallery
//	GET /icons.json       icon listing and skipped assets
//	GET /icons/{name}.svg standalone SVG document of one icon
//	GET /healthz          liveness
package preview

import (
	"context"
	"embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/icon"
	"github.com/matzehuels/svgicon/pkg/observability"
	"github.com/matzehuels/svgicon/pkg/pipeline"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

//go:embed templates/gallery.html
var templates embed.FS

var gallery = template.Must(template.ParseFS(templates, "templates/gallery.html"))

// Compiler compiles a source tree in memory. *pipeline.Runner implements it.
type Compiler interface {
	CompileAll(ctx context.Context, opts pipeline.Options) ([]icon.Icon, []pipeline.Failure, error)
}

// Config configures a preview server.
type Config struct {
	Addr     string
	Compiler Compiler
	Options  pipeline.Options // Source, Pattern and Style are used
	Logger   *log.Logger
}

// Server serves the most recent successful compilation.
type Server struct {
	compiler Compiler
	opts     pipeline.Options
	logger   *log.Logger
	http     *http.Server

	mu   sync.RWMutex
	snap *snapshot
}

type snapshot struct {
	icons    []icon.Icon
	byName   map[string]int
	failures []pipeline.Failure
	compiled time.Time
}

// New validates cfg and builds a server. No compilation happens until
// Refresh is called.
func New(cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "preview address is required")
	}
	if cfg.Compiler == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "preview compiler is required")
	}
	if cfg.Options.Source == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "source path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	s := &Server{
		compiler: cfg.Compiler,
		opts:     cfg.Options,
		logger:   logger,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Refresh recompiles the source tree. On error the previous snapshot keeps
// being served.
func (s *Server) Refresh(ctx context.Context) error {
	icons, failures, err := s.compiler.CompileAll(ctx, s.opts)
	if err != nil {
		return err
	}
	snap := &snapshot{
		icons:    icons,
		byName:   make(map[string]int, len(icons)),
		failures: failures,
		compiled: time.Now(),
	}
	for i, ic := range icons {
		snap.byName[ic.Name()] = i
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()

	s.logger.Info("preview refreshed", "icons", len(icons), "skipped", len(failures))
	return nil
}

func (s *Server) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Handler returns the routes without a listener, for tests and embedding.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Group(func(r chi.Router) {
		r.Use(s.requireSnapshot)
		r.Get("/", s.handleGallery)
		r.Get("/icons.json", s.handleList)
		r.Get("/icons/*", s.handleIcon)
	})
	return r
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.http.ListenAndServe()
	}()
	s.logger.Info("preview listening", "addr", s.http.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown preview server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve preview: %w", err)
	}
}

// =============================================================================
// Middleware
// =============================================================================

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hooks := observability.Preview()
		hooks.OnRequest(r.Context(), r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		dur := time.Since(start)
		hooks.OnResponse(r.Context(), r.Method, r.URL.Path, status, dur)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", status, "took", dur)
	})
}

func (s *Server) requireSnapshot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.current() == nil {
			http.Error(w, "icons are still compiling", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Handlers
// =============================================================================

type galleryIcon struct {
	Name string
	URL  string
	SVG  template.HTML
}

// iconURL is the route of one icon. Each name segment is escaped, so names
// with '#', '?' or spaces still link to themselves.
func iconURL(name string) string {
	segs := strings.Split(name, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return "/icons/" + strings.Join(segs, "/") + ".svg"
}

type galleryFailure struct {
	Path  string
	Error string
}

func (s *Server) handleGallery(w http.ResponseWriter, _ *http.Request) {
	snap := s.current()
	data := struct {
		Source   string
		Compiled time.Time
		Icons    []galleryIcon
		Failures []galleryFailure
	}{
		Source:   s.opts.Source,
		Compiled: snap.compiled,
	}
	for _, ic := range snap.icons {
		// Markup comes out of the sanitizer, so it is safe to inline.
		data.Icons = append(data.Icons, galleryIcon{Name: ic.Name(), URL: iconURL(ic.Name()), SVG: template.HTML(ic.Standalone())})
	}
	for _, f := range snap.failures {
		data.Failures = append(data.Failures, galleryFailure{Path: f.Rel, Error: errors.UserMessage(f.Err)})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := gallery.Execute(w, data); err != nil {
		s.logger.Error("render gallery", "error", err)
	}
}

// IconInfo is one entry of /icons.json.
type IconInfo struct {
	Name    string  `json:"name"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ViewBox string  `json:"viewBox"`
	URL     string  `json:"url"`
}

// FailureInfo is a skipped asset in /icons.json.
type FailureInfo struct {
	Path  string `json:"path"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// Listing is the body of /icons.json.
type Listing struct {
	Compiled time.Time     `json:"compiled"`
	Icons    []IconInfo    `json:"icons"`
	Skipped  []FailureInfo `json:"skipped"`
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	snap := s.current()
	out := Listing{
		Compiled: snap.compiled,
		Icons:    make([]IconInfo, 0, len(snap.icons)),
		Skipped:  make([]FailureInfo, 0, len(snap.failures)),
	}
	for _, ic := range snap.icons {
		out.Icons = append(out.Icons, IconInfo{
			Name:    ic.Name(),
			Width:   ic.Width,
			Height:  ic.Height,
			ViewBox: ic.ViewBox,
			URL:     iconURL(ic.Name()),
		})
	}
	for _, f := range snap.failures {
		out.Skipped = append(out.Skipped, FailureInfo{
			Path:  f.Rel,
			Code:  string(errors.GetCode(f.Err)),
			Error: errors.UserMessage(f.Err),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.logger.Error("encode listing", "error", err)
	}
}

func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "*")
	// chi routes on the raw path when the request needed one.
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(param)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		param = unescaped
	}
	name, ok := strings.CutSuffix(param, ".svg")
	if !ok {
		http.NotFound(w, r)
		return
	}
	snap := s.current()
	i, ok := snap.byName[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = io.WriteString(w, snap.icons[i].Standalone())
}
