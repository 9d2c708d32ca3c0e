// Package assets indexes a static asset directory once at startup and
// serves its files, preferring precompressed siblings the client accepts.
package assets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotIndexed is returned for a path that has no index entry.
	ErrNotIndexed = errors.New("assets: path not indexed")
	// ErrIndexDiverged means an indexed file is no longer readable on disk.
	ErrIndexDiverged = errors.New("assets: index and filesystem diverged")
)

// maxLinkDepth bounds directory recursion so symlink cycles fail the build
// instead of looping.
const maxLinkDepth = 32

type entry struct {
	abs  string
	size int64
}

// Index maps public URL paths ("/app.js") to absolute file paths. It is
// complete when Build returns and has no mutating methods, so it can be
// shared by any number of goroutines.
type Index struct {
	root    string
	entries map[string]entry
	total   int64
}

// Build walks root recursively, one goroutine per directory, and returns the
// finished index. Any walk error (missing root, permission, broken symlink)
// fails the whole build.
func Build(ctx context.Context, root string) (*Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve static root: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat static root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("static root %s is not a directory", abs)
	}

	b := &builder{root: abs, entries: make(map[string]entry)}
	g, gctx := errgroup.WithContext(ctx)
	b.g = g
	b.ctx = gctx
	b.walk(abs, 0)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := &Index{root: abs, entries: b.entries}
	for _, e := range b.entries {
		idx.total += e.size
	}
	return idx, nil
}

type builder struct {
	root string
	g    *errgroup.Group
	ctx  context.Context

	mu      sync.Mutex
	entries map[string]entry
}

func (b *builder) walk(dir string, depth int) {
	b.g.Go(func() error {
		if depth > maxLinkDepth {
			return fmt.Errorf("walk %s: directory nesting exceeds %d (symlink cycle?)", dir, maxLinkDepth)
		}
		if err := b.ctx.Err(); err != nil {
			return err
		}
		des, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read dir: %w", err)
		}
		for _, de := range des {
			p := filepath.Join(dir, de.Name())
			// Stat follows symlinks; a dangling link is an error
			fi, err := os.Stat(p)
			if err != nil {
				return fmt.Errorf("stat: %w", err)
			}
			switch {
			case fi.IsDir():
				b.walk(p, depth+1)
			case fi.Mode().IsRegular():
				rel, err := filepath.Rel(b.root, p)
				if err != nil {
					return fmt.Errorf("relative path for %s: %w", p, err)
				}
				key := "/" + filepath.ToSlash(rel)
				b.mu.Lock()
				b.entries[key] = entry{abs: p, size: fi.Size()}
				b.mu.Unlock()
			}
		}
		return nil
	})
}

// Root returns the absolute directory the index was built from.
func (x *Index) Root() string { return x.root }

// Lookup returns the absolute file path for a public path.
func (x *Index) Lookup(path string) (string, bool) {
	e, ok := x.entries[path]
	return e.abs, ok
}

// Len returns the number of indexed files, variants included.
func (x *Index) Len() int { return len(x.entries) }

// TotalBytes returns the summed size of all indexed files at build time.
func (x *Index) TotalBytes() int64 { return x.total }

// Paths returns every indexed public path in sorted order.
func (x *Index) Paths() []string {
	out := make([]string, 0, len(x.entries))
	for k := range x.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
