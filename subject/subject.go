// CLAUDE:SUMMARY Discovers renderable test subjects by walking a corpus tree with exclusion and denylist rules.
// Package subject enumerates the pages under visual regression.
//
// A Subject is identified by its slash-separated path relative to the corpus
// root. Its Token flattens that path into a single filename-safe word so the
// image slots of nested pages live side by side in one directory.
package subject

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// TokenSeparator replaces each path separator when building a Token.
const TokenSeparator = "--"

// Subject is one renderable test page.
type Subject struct {
	Path  string // relative to the corpus root, forward slashes, e.g. "Sub/Foo.elm"
	Token string // flattened identifier, e.g. "Sub--Foo"
}

// New builds a Subject from a path relative to the corpus root.
func New(rel string) Subject {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimPrefix(rel, "./")
	return Subject{Path: rel, Token: TokenFor(rel)}
}

// TokenFor flattens a relative path: the extension is dropped and every
// separator becomes TokenSeparator.
func TokenFor(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	return strings.ReplaceAll(rel, "/", TokenSeparator)
}

func (s Subject) String() string { return s.Token }

// Options controls what Discover selects.
type Options struct {
	// Extension selected leaf files must end with. Default: ".elm".
	Extension string

	// ExcludeDirs are directory names never descended into. Default: elm-stuff.
	ExcludeDirs []string

	// ExcludeFiles are file names that are never subjects. Default: Data.elm.
	ExcludeFiles []string

	// Denylist holds subjects (by Path or Token) known to render volatile
	// content, e.g. pages that fetch live data.
	Denylist []string
}

// DefaultOptions mirrors the Elm examples corpus layout.
func DefaultOptions() Options {
	return Options{
		Extension:    ".elm",
		ExcludeDirs:  []string{"elm-stuff"},
		ExcludeFiles: []string{"Data.elm"},
	}
}

func (o *Options) defaults() {
	if o.Extension == "" {
		o.Extension = ".elm"
	}
}

// ErrTokenCollision is wrapped by DiscoveryError when two paths flatten to
// the same Token and would share image slots.
var ErrTokenCollision = errors.New("subject: token collision")

// DiscoveryError is returned when the subject tree cannot be read.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("subject: discover %s: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Discover walks root and returns every subject, sorted by Path.
//
// Symlinked directories are followed; a directory reached twice through
// links is walked once. Two subjects with the same Token are an error.
func Discover(root string, opts Options) ([]Subject, error) {
	opts.defaults()

	w := &walker{
		opts:    opts,
		denied:  make(map[string]bool, len(opts.Denylist)),
		visited: make(map[string]bool),
	}
	for _, d := range opts.Denylist {
		w.denied[filepath.ToSlash(d)] = true
	}

	if err := w.walk(root, ""); err != nil {
		return nil, &DiscoveryError{Root: root, Err: err}
	}

	slices.SortFunc(w.subjects, func(a, b Subject) int { return strings.Compare(a.Path, b.Path) })

	seen := make(map[string]string, len(w.subjects))
	for _, s := range w.subjects {
		if other, ok := seen[s.Token]; ok {
			return nil, &DiscoveryError{Root: root,
				Err: fmt.Errorf("%w: %s and %s both map to %q", ErrTokenCollision, other, s.Path, s.Token)}
		}
		seen[s.Token] = s.Path
	}
	return w.subjects, nil
}

type walker struct {
	opts     Options
	denied   map[string]bool
	visited  map[string]bool // resolved directories already walked
	subjects []Subject
}

// walk visits dir, whose path relative to the corpus root is prefix.
func (w *walker) walk(dir, prefix string) error {
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	if w.visited[real] {
		return nil
	}
	w.visited[real] = true

	return filepath.WalkDir(real, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		r, err := filepath.Rel(real, p)
		if err != nil {
			return err
		}
		rel := filepath.Join(prefix, r)

		if d.IsDir() {
			if p != real && slices.Contains(w.opts.ExcludeDirs, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			fi, err := os.Stat(p)
			if err != nil {
				return err
			}
			if fi.IsDir() {
				if slices.Contains(w.opts.ExcludeDirs, d.Name()) {
					return nil
				}
				return w.walk(p, rel)
			}
		}

		name := d.Name()
		if !strings.HasSuffix(name, w.opts.Extension) || slices.Contains(w.opts.ExcludeFiles, name) {
			return nil
		}
		s := New(rel)
		if w.denied[s.Path] || w.denied[s.Token] {
			return nil
		}
		w.subjects = append(w.subjects, s)
		return nil
	})
}
