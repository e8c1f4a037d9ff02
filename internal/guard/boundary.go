// Package guard enforces the filesystem, process, and network boundaries
// around the authorization pipeline. Guards are pure policy objects: they
// validate, they never perform the guarded operation themselves.
package guard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AccessMode is the kind of filesystem access being validated.
type AccessMode string

const (
	AccessRead  AccessMode = "read"
	AccessWrite AccessMode = "write"
)

// BoundaryViolationError reports an attempted filesystem operation outside
// the permitted project scope.
type BoundaryViolationError struct {
	Path   string
	Mode   AccessMode
	Reason string
}

// Error implements error.
func (e *BoundaryViolationError) Error() string {
	return fmt.Sprintf("boundary violation: %s access to %q: %s", e.Mode, e.Path, e.Reason)
}

// Boundary validates filesystem paths against a project root. Escaping the
// root fails for every mode; there is no read-only exemption.
type Boundary struct {
	root string
}

// NewBoundary creates a boundary rooted at projectRoot. The root is
// canonicalized once, including symlink resolution, so later comparisons
// are against the real directory.
func NewBoundary(projectRoot string) (*Boundary, error) {
	if strings.TrimSpace(projectRoot) == "" {
		return nil, fmt.Errorf("project root must not be empty")
	}

	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root %q: %w", projectRoot, err)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("canonicalize project root %q: %w", projectRoot, err)
	}

	return &Boundary{root: canonical}, nil
}

// Root returns the canonical project root.
func (b *Boundary) Root() string {
	return b.root
}

// ValidateFileAccess canonicalizes path, resolving `..` segments and
// symlinks, and returns the canonical path only if it is the root or a
// descendant of it. Relative paths are interpreted against the root.
func (b *Boundary) ValidateFileAccess(path string, mode AccessMode) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &BoundaryViolationError{Path: path, Mode: mode, Reason: "empty path"}
	}

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(b.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	canonical, err := resolveSymlinks(candidate)
	if err != nil {
		return "", &BoundaryViolationError{Path: path, Mode: mode, Reason: err.Error()}
	}

	rel, err := filepath.Rel(b.root, canonical)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &BoundaryViolationError{
			Path:   path,
			Mode:   mode,
			Reason: "outside project root " + b.root,
		}
	}

	return canonical, nil
}

// resolveSymlinks resolves the path through symlinks. A path that does not
// exist yet, such as a new file about to be written, is resolved through
// its deepest existing ancestor so a symlinked parent cannot smuggle the
// write out of the root.
func resolveSymlinks(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir, base := filepath.Split(filepath.Clean(path))
	parent, err := resolveSymlinks(filepath.Clean(dir))
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, base), nil
}
