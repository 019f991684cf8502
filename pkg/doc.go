// Package pkg provides the libraries behind the svgicon compiler.
//
// # Overview
//
// svgicon turns a directory of SVG files into one JavaScript module per icon
// plus an index module per directory. The pkg directory is organized as:
//
//  1. [asset] - discovery and location of source files
//  2. [svg] - sanitizing, annotating and namespacing markup
//  3. [icon] - sizing, template variables and the cached compiler
//  4. [template] - module templates and placeholder substitution
//  5. [manifest] - the index tree and its modules
//  6. [pipeline] - orchestration of a full, destructive run
//  7. [cache], [config], [errors], [observability] - supporting infrastructure
//  8. [watch], [preview] - development loops around the pipeline
//
// # Data Flow
//
//	source/**/*.svg
//	       ↓
//	  [asset] Discover, Load
//	       ↓
//	  [svg] Sanitize → Annotate → Namespace
//	       ↓
//	  [icon] New, Render(template)
//	       ↓
//	  target/<dirs>/<name>.<ext>   (one per icon, written in parallel)
//	       ↓  after every asset is accounted for
//	  [manifest] Build, Emit → target/**/index.<ext>
//
// # Quick Start
//
//	runner := pipeline.NewRunner(nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Source: "assets/svg",
//	    Target: "src/icons",
//	})
//	if err != nil {
//	    return err // nothing usable was produced
//	}
//	for _, f := range result.Failures {
//	    logger.Warn("skipped", "path", f.Rel, "err", f.Err)
//	}
package pkg
