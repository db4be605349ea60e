// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package site serves a pre-built static website from a directory.
package site

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"go.astrophena.name/preview/internal/web"
)

// IndexFile is the file served for a directory URL.
const IndexFile = "index.html"

// ErrNoSite is returned by [Open] when the site directory doesn't exist or
// isn't a directory.
var ErrNoSite = errors.New("site directory not found")

// Root is a validated site directory.
type Root struct {
	dir  string
	fsys fs.FS
}

// Open resolves dir to an absolute path and checks that it is a directory.
func Open(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", dir, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoSite, abs)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoSite, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoSite, abs)
	}
	return &Root{dir: abs, fsys: os.DirFS(abs)}, nil
}

// Dir returns the absolute path of the site directory.
func (r *Root) Dir() string { return r.dir }

// FS returns the site directory as a file system.
func (r *Root) FS() fs.FS { return r.fsys }

// HasIndex reports whether the site has an index file at its root.
func (r *Root) HasIndex() bool { return hasIndex(r.fsys) }

func hasIndex(fsys fs.FS) bool {
	fi, err := fs.Stat(fsys, IndexFile)
	return err == nil && fi.Mode().IsRegular()
}

// Check returns a [web.HealthFunc] that reports whether fsys is still
// readable.
func Check(fsys fs.FS) web.HealthFunc {
	return func() (status string, ok bool) {
		if _, err := fs.ReadDir(fsys, "."); err != nil {
			return fmt.Sprintf("site directory is not readable: %v", err), false
		}
		if !hasIndex(fsys) {
			return "serving, but " + IndexFile + " is missing", true
		}
		return "serving", true
	}
}

// Handler is an [http.Handler] that serves files of a static site.
//
// Existing files are served by [http.FileServerFS], which infers the content
// type from the extension, serves the index file for directories (or lists
// their contents if there is none) and handles conditional requests. Missing
// files and unsupported methods are answered with error pages.
type Handler struct {
	fsys  fs.FS
	files http.Handler
}

// New returns a new Handler that serves files from fsys.
func New(fsys fs.FS) *Handler {
	return &Handler{
		fsys:  fsys,
		files: http.FileServerFS(fsys),
	}
}

// ServeHTTP implements the [http.Handler] interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		web.RespondError(w, r, fmt.Errorf("%s: %w", r.Method, web.ErrNotImplemented))
		return
	}

	if _, err := fs.Stat(h.fsys, name(r.URL.Path)); err != nil {
		web.RespondError(w, r, statusErr(err))
		return
	}

	h.files.ServeHTTP(w, r)
}

// name converts a URL path to a file name within the site. Cleaning a rooted
// path removes every ".." element, so the result never leaves the root.
func name(urlPath string) string {
	p := path.Clean("/" + urlPath)
	if p == "/" {
		return "."
	}
	return strings.TrimPrefix(p, "/")
}

func statusErr(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return fmt.Errorf("%w: %v", web.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", web.ErrForbidden, err)
	case errors.Is(err, fs.ErrInvalid):
		// os.DirFS rejects names that aren't valid fs.FS paths (for example,
		// containing a backslash on Windows); nothing can be found there.
		return fmt.Errorf("%w: %v", web.ErrNotFound, err)
	}
	return fmt.Errorf("reading file info: %w", err)
}
