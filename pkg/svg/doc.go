// Package svg transforms SVG documents so that many icons can share one DOM.
//
// A document passes through three stages, each represented by its own type:
//
//  1. [Sanitizer] produces [Sanitized]: editor noise, titles, descriptions,
//     styles, scripts and comments are removed, simple shapes become paths,
//     and every referenced element id is renamed under [IDPrefix].
//  2. [Annotate] produces [Annotated]: each paintable shape gets a zero-based
//     pid ordinal and fill/stroke attributes are renamed to _fill/_stroke so
//     the rendering component treats them as overridable defaults.
//  3. [Namespace] produces [Namespaced]: every prefixed id is rewritten to
//     embed a fragment derived from the asset's location, which keeps ids
//     unique across every icon compiled from the same source tree.
//
// Each stage only accepts the previous stage's type, so a document cannot be
// annotated or namespaced twice.
package svg
