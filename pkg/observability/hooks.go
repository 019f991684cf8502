// Package observability provides hooks for metrics, tracing, and logging.
//
// Libraries in svgicon never import a metrics backend. They report events
// through the hook interfaces below, and the binary decides at startup what
// listens. The default hooks do nothing.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetPipelineHooks(&myPipelineHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	start := time.Now()
//	icon, err := compiler.Compile(ctx, a)
//	observability.Pipeline().OnIconComplete(ctx, a.Location.Path(), time.Since(start), err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Pipeline Hooks
// =============================================================================

// PipelineHooks receives events from a generate run.
type PipelineHooks interface {
	// OnRunStart fires after discovery, before the target is cleared.
	OnRunStart(ctx context.Context, source string, assets int)

	// OnIconComplete fires once per asset, with err set when it was skipped.
	OnIconComplete(ctx context.Context, name string, duration time.Duration, err error)

	// OnManifestWritten fires for every index file written.
	OnManifestWritten(ctx context.Context, path string, entries int)

	// OnRunComplete fires when the run ends, successfully or not.
	OnRunComplete(ctx context.Context, icons, failures int, duration time.Duration, err error)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// Preview Hooks
// =============================================================================

// PreviewHooks receives events from the preview HTTP server.
type PreviewHooks interface {
	// OnRequest records an incoming request.
	OnRequest(ctx context.Context, method, path string)

	// OnResponse records a completed response.
	OnResponse(ctx context.Context, method, path string, status int, duration time.Duration)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopPipelineHooks is a no-op implementation of PipelineHooks.
type NoopPipelineHooks struct{}

func (NoopPipelineHooks) OnRunStart(context.Context, string, int)                       {}
func (NoopPipelineHooks) OnIconComplete(context.Context, string, time.Duration, error)  {}
func (NoopPipelineHooks) OnManifestWritten(context.Context, string, int)                {}
func (NoopPipelineHooks) OnRunComplete(context.Context, int, int, time.Duration, error) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopPreviewHooks is a no-op implementation of PreviewHooks.
type NoopPreviewHooks struct{}

func (NoopPreviewHooks) OnRequest(context.Context, string, string)                      {}
func (NoopPreviewHooks) OnResponse(context.Context, string, string, int, time.Duration) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	pipelineHooks PipelineHooks = NoopPipelineHooks{}
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	previewHooks  PreviewHooks  = NoopPreviewHooks{}
	hooksMu       sync.RWMutex
)

// SetPipelineHooks registers custom pipeline hooks.
// This should be called once at application startup before any pipeline operations.
func SetPipelineHooks(h PipelineHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		pipelineHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetPreviewHooks registers custom preview server hooks.
func SetPreviewHooks(h PreviewHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		previewHooks = h
	}
}

// Pipeline returns the registered pipeline hooks.
func Pipeline() PipelineHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return pipelineHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Preview returns the registered preview server hooks.
func Preview() PreviewHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return previewHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	pipelineHooks = NoopPipelineHooks{}
	cacheHooks = NoopCacheHooks{}
	previewHooks = NoopPreviewHooks{}
}
