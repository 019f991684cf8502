// Package manifest builds the index modules that pull every generated icon
// into a bundle.
//
// The target tree gets one index file per directory. It references each icon
// in that directory and each immediate subdirectory, whose own index
// continues the chain, so importing the root index registers every icon.
//
// Entries keep first-appearance order from the locations passed to [Build];
// callers that want stable output sort the locations first.
package manifest

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/svgicon/pkg/asset"
	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/observability"
	"github.com/matzehuels/svgicon/pkg/template"
)

// IndexName is the base name of every manifest file.
const IndexName = "index"

// Entry is one line of a manifest.
type Entry struct {
	Name  string // icon base name or subdirectory name
	IsDir bool
}

// Node is the manifest for one directory of the target tree.
type Node struct {
	Dir      string // slash-separated path from the target root, "" at the root
	Entries  []Entry
	children map[string]*Node
}

// sub returns the node for the named subdirectory, or nil.
func (n *Node) sub(name string) *Node {
	return n.children[name]
}

// Build groups locations into a manifest tree.
func Build(locs []asset.Location) *Node {
	root := &Node{}
	for _, loc := range locs {
		root.insert(loc)
	}
	return root
}

func (n *Node) insert(loc asset.Location) {
	head, rest, ok := loc.Shift()
	if !ok {
		n.Entries = append(n.Entries, Entry{Name: loc.Name})
		return
	}
	child := n.children[head]
	if child == nil {
		if n.children == nil {
			n.children = map[string]*Node{}
		}
		child = &Node{Dir: path.Join(n.Dir, head)}
		n.children[head] = child
		n.Entries = append(n.Entries, Entry{Name: head, IsDir: true})
	}
	child.insert(rest)
}

// Walk visits n and then every descendant, depth first, in entry order.
func Walk(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, e := range n.Entries {
		if !e.IsDir {
			continue
		}
		if err := Walk(n.children[e.Name], fn); err != nil {
			return err
		}
	}
	return nil
}

// File returns the slash-separated manifest path for n.
func (n *Node) File(ext string) string {
	return path.Join(n.Dir, IndexName+"."+ext)
}

// Render produces the manifest text for one node. JavaScript manifests
// start with an eslint-disable banner. A subdirectory that shares its name
// with an icon in the same directory is referenced through its index file,
// since "./x" would resolve to the icon.
func Render(n *Node, style template.Style, ext string) string {
	var b strings.Builder
	if ext == "js" {
		b.WriteString("/* eslint-disable */\n")
	}

	icons := map[string]bool{}
	for _, e := range n.Entries {
		if !e.IsDir {
			icons[e.Name] = true
		}
	}

	for _, e := range n.Entries {
		ref := "./" + e.Name
		if e.IsDir && icons[e.Name] {
			ref += "/" + IndexName
		}
		ref = template.EscapeJS(ref)
		if style == template.StyleImport {
			b.WriteString("import '" + ref + "'\n")
		} else {
			b.WriteString("require('" + ref + "')\n")
		}
	}
	return b.String()
}

// Written describes one manifest file on disk.
type Written struct {
	Path    string // slash-separated, relative to the target root
	Entries int
}

// Emit writes every manifest of the tree under root. Files are written
// concurrently; the first failure cancels the rest.
func Emit(ctx context.Context, root string, tree *Node, style template.Style, ext string) ([]Written, error) {
	var nodes []*Node
	_ = Walk(tree, func(n *Node) error {
		nodes = append(nodes, n)
		return nil
	})

	written := make([]Written, len(nodes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, n := range nodes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rel := n.File(ext)
			dst := filepath.Join(root, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return errors.WrapWrite(err, rel)
			}
			if err := os.WriteFile(dst, []byte(Render(n, style, ext)), 0644); err != nil {
				return errors.WrapWrite(err, rel)
			}
			written[i] = Written{Path: rel, Entries: len(n.Entries)}
			observability.Pipeline().OnManifestWritten(ctx, rel, len(n.Entries))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return written, nil
}
