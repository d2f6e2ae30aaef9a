// Package security holds the policies that gate tool execution: a filesystem
// allowlist for the file tools and a static screen for Python snippets.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrPathDenied indicates the path escapes the configured filesystem allowlist.
	ErrPathDenied = errors.New("security: path denied")
	// ErrSymlinkEscape is returned when a symlink resolves outside the allowlist.
	ErrSymlinkEscape = errors.New("security: symlink escapes allowlist")
	// ErrCodeRejected indicates a Python snippet failed the static screen.
	ErrCodeRejected = errors.New("security: code rejected")
)

// FilePolicy enforces path boundaries for the file tools. Paths must resolve
// inside one of the allowed roots, symlinks included.
type FilePolicy struct {
	mu    sync.RWMutex
	roots []string
}

// NewFilePolicy initialises a policy rooted at root with optional extra
// allowed directories.
func NewFilePolicy(root string, extra ...string) *FilePolicy {
	p := &FilePolicy{}
	p.Allow(root)
	for _, dir := range extra {
		p.Allow(dir)
	}
	return p
}

// Allow registers an additional allowed directory.
func (p *FilePolicy) Allow(dir string) {
	clean := normalize(dir)
	if clean == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.roots {
		if existing == clean {
			return
		}
	}
	p.roots = append(p.roots, clean)
}

// Roots returns a copy of the allowlist.
func (p *FilePolicy) Roots() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.roots))
	copy(out, p.roots)
	return out
}

// Validate ensures path resolves inside the allowlist. The nearest existing
// ancestor is symlink-resolved so a link cannot smuggle access outside a root.
func (p *FilePolicy) Validate(path string) error {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return fmt.Errorf("%w: empty path", ErrPathDenied)
	}

	resolved, err := resolvePath(trimmed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPathDenied, err)
	}

	p.mu.RLock()
	roots := append([]string(nil), p.roots...)
	p.mu.RUnlock()

	for _, root := range roots {
		if within(resolved, root) {
			return nil
		}
	}

	// distinguish a symlink hop from a plainly out-of-bounds path
	abs, absErr := filepath.Abs(trimmed)
	if absErr == nil && abs != resolved {
		for _, root := range roots {
			if within(filepath.Clean(abs), root) {
				return fmt.Errorf("%w: %s -> %s", ErrSymlinkEscape, path, resolved)
			}
		}
	}
	return fmt.Errorf("%w: %s", ErrPathDenied, resolved)
}

// resolvePath makes path absolute and resolves symlinks through the nearest
// existing ancestor, so not-yet-created files still validate.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	prefix := abs
	var suffix []string
	for {
		resolved, err := filepath.EvalSymlinks(prefix)
		if err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, suffix[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(prefix)
		if parent == prefix {
			return abs, nil
		}
		suffix = append(suffix, filepath.Base(prefix))
		prefix = parent
	}
}

func normalize(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return filepath.Clean(resolved)
	}
	return filepath.Clean(abs)
}

func within(path, root string) bool {
	if root == "" {
		return false
	}
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	sep := string(filepath.Separator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(path, root)
}
