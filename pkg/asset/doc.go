// Package asset models SVG source assets and their locations relative to the
// source root.
//
// A [Location] is the join key between the per-icon compilation pipeline and
// the manifest tree: it holds the directory components leading to an asset
// and the asset's base name with the extension stripped. Two assets with the
// same base name may live in different directories; only the full location
// is unique.
//
// Discovery is a single glob over the source root using doublestar patterns
// (default "**/*.svg"). The order of discovered paths is not meaningful and
// callers that need determinism must sort.
package asset
