package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

// FileResources serves the regular files under a directory as resources.
// Symlinks are followed only when they resolve inside the root. Start
// watches the tree with fsnotify and reports additions, removals and
// writes through OnChange.
type FileResources struct {
	root    string
	baseURI string
	logger  logging.Logger

	mu      sync.Mutex
	hooks   changeHooks
	started bool
}

// FileOption configures FileResources
type FileOption func(*FileResources)

// WithBaseURI sets the URI prefix files are published under. The default
// is the file:// URI of the root.
func WithBaseURI(base string) FileOption {
	return func(r *FileResources) {
		if base != "" {
			r.baseURI = strings.TrimSuffix(base, "/")
		}
	}
}

// WithFileLogger sets the logger used by the watcher
func WithFileLogger(logger logging.Logger) FileOption {
	return func(r *FileResources) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewFileResources creates a provider rooted at dir
func NewFileResources(dir string, opts ...FileOption) (*FileResources, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %q: %w", dir, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %q: %w", dir, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", dir)
	}

	r := &FileResources{
		root:    real,
		baseURI: "file://" + filepath.ToSlash(real),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Root returns the resolved root directory
func (r *FileResources) Root() string { return r.root }

// ListResources walks the root and returns every regular file sorted by
// URI
func (r *FileResources) ListResources(ctx context.Context) ([]protocol.Resource, error) {
	var out []protocol.Resource
	err := filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are skipped, not fatal
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		out = append(out, protocol.Resource{
			URI:      r.uriFor(rel),
			Name:     rel,
			MimeType: mimeFor(rel),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out, nil
}

// ListResourceTemplates returns the single template covering every path
// under the root
func (r *FileResources) ListResourceTemplates(context.Context) ([]protocol.ResourceTemplate, error) {
	return []protocol.ResourceTemplate{{
		URITemplate: r.baseURI + "/{path}",
		Name:        "files",
		Description: "Files under " + r.root,
	}}, nil
}

// ReadResource returns a file as text when it is valid UTF-8 and as a
// base64 blob otherwise
func (r *FileResources) ReadResource(_ context.Context, uri string) ([]protocol.ResourceContents, error) {
	p, ok := r.pathFor(uri)
	if !ok {
		return nil, mcperrors.ResourceNotFound(uri)
	}
	real, err := filepath.EvalSymlinks(p)
	if err != nil || !within(real, r.root) {
		return nil, mcperrors.ResourceNotFound(uri)
	}
	info, err := os.Stat(real)
	if err != nil || !info.Mode().IsRegular() {
		return nil, mcperrors.ResourceNotFound(uri)
	}

	data, err := os.ReadFile(real)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}

	contents := protocol.ResourceContents{URI: uri, MimeType: mimeFor(p)}
	if utf8.Valid(data) {
		contents.Text = string(data)
	} else {
		contents.Blob = base64.StdEncoding.EncodeToString(data)
	}
	return []protocol.ResourceContents{contents}, nil
}

// OnChange registers fn for changes seen by the watcher
func (r *FileResources) OnChange(fn func(Change)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks.add(fn)
}

// Start installs watches on every directory under the root and processes
// events until ctx is done. Watches are in place when Start returns.
func (r *FileResources) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("file watcher for %s already started", r.root)
	}
	r.started = true
	r.mu.Unlock()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	err = filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return w.Add(p)
	})
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", r.root, err)
	}

	go r.watch(ctx, w)
	return nil
}

func (r *FileResources) watch(ctx context.Context, w *fsnotify.Watcher) {
	defer func() {
		_ = w.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			r.handleEvent(w, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.logger.WithError(err).Warn("file watcher error", logging.String("root", r.root))
		}
	}
}

func (r *FileResources) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.Add(ev.Name); err != nil {
				r.logger.WithError(err).Debug("failed to watch new directory", logging.String("path", ev.Name))
			}
		}
		r.emit(Change{Kind: ListChanged})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// watches on removed directories go away by themselves
		r.emit(Change{Kind: ListChanged})
	case ev.Has(fsnotify.Write):
		rel, err := filepath.Rel(r.root, ev.Name)
		if err != nil || !within(ev.Name, r.root) {
			return
		}
		r.emit(Change{Kind: ContentUpdated, URI: r.uriFor(filepath.ToSlash(rel))})
	}
}

func (r *FileResources) emit(c Change) {
	r.mu.Lock()
	hooks := r.hooks.snapshot()
	r.mu.Unlock()
	fire(hooks, c)
}

func (r *FileResources) uriFor(rel string) string {
	return r.baseURI + "/" + rel
}

// pathFor maps a URI back to a path under the root
func (r *FileResources) pathFor(uri string) (string, bool) {
	rel, ok := strings.CutPrefix(uri, r.baseURI+"/")
	if !ok || !fs.ValidPath(rel) || rel == "." {
		return "", false
	}
	return filepath.Join(r.root, filepath.FromSlash(rel)), true
}

// within reports whether target is root or below it
func within(target, root string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func mimeFor(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
