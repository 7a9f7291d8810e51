// CLAUDE:SUMMARY Three-slot image state per subject (previous, current, diff) with promotion and reset rotation.
// Package slot owns the on-disk image artifacts of each subject and the
// rotation rules between runs.
//
// Layout:
//
//	<images>/<token>--previous.png   accepted baseline
//	<images>/<token>--current.png    most recent capture
//	<diffs>/<token>--diff.png        highlighted differences (only when changed)
//
// A previous baseline is created once, by promoting the first current
// capture, and then stays fixed until a reset run clears it.
package slot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hazyhaar/shotcheck/subject"
)

// Kind names one image slot of a subject.
type Kind string

const (
	Previous Kind = "previous"
	Current  Kind = "current"
	Diff     Kind = "diff"
)

// Mode is selected once per invocation and applies to every subject.
type Mode int

const (
	Normal Mode = iota
	Reset
)

func (m Mode) String() string {
	if m == Reset {
		return "reset"
	}
	return "normal"
}

// Action reports what Rotate did for one subject.
type Action string

const (
	ActionFirstRun Action = "first-run" // no current yet, nothing to rotate
	ActionPromote  Action = "promote"   // current became previous
	ActionKeep     Action = "keep"      // previous kept, current will be overwritten
	ActionReset    Action = "reset"     // all slots cleared
)

// ErrNoSlot is returned by Load when the slot image does not exist.
var ErrNoSlot = errors.New("slot: image does not exist")

// RotationError is a filesystem failure on one subject's slots.
type RotationError struct {
	Subject string
	Op      string // stat | rename | remove | write | encode | load
	Path    string
	Err     error
}

func (e *RotationError) Error() string {
	return fmt.Sprintf("slot: %s %s (subject %s): %v", e.Op, e.Path, e.Subject, e.Err)
}

func (e *RotationError) Unwrap() error { return e.Err }

// Store resolves and mutates slot files.
type Store struct {
	ImagesDir string
	DiffsDir  string
}

// NewStore returns a Store rooted at the given directories.
func NewStore(imagesDir, diffsDir string) *Store {
	return &Store{ImagesDir: imagesDir, DiffsDir: diffsDir}
}

// Init creates the images and diffs directories.
func (st *Store) Init() error {
	for _, dir := range []string{st.ImagesDir, st.DiffsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("slot: mkdir %s: %w", dir, err)
		}
	}
	return nil
}

// Path returns the file path of a subject's slot.
func (st *Store) Path(s subject.Subject, k Kind) string {
	name := s.Token + subject.TokenSeparator + string(k) + ".png"
	if k == Diff {
		return filepath.Join(st.DiffsDir, name)
	}
	return filepath.Join(st.ImagesDir, name)
}

// Exists reports whether the slot file is present.
func (st *Store) Exists(s subject.Subject, k Kind) (bool, error) {
	p := st.Path(s, k)
	_, err := os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, &RotationError{Subject: s.Token, Op: "stat", Path: p, Err: err}
	}
}

// Rotate prepares a subject's slots for a fresh capture.
func (st *Store) Rotate(s subject.Subject, mode Mode) (Action, error) {
	if mode == Reset {
		for _, k := range []Kind{Previous, Current, Diff} {
			if err := st.remove(s, k); err != nil {
				return "", err
			}
		}
		return ActionReset, nil
	}

	hasCurrent, err := st.Exists(s, Current)
	if err != nil {
		return "", err
	}
	if !hasCurrent {
		return ActionFirstRun, nil
	}

	hasPrevious, err := st.Exists(s, Previous)
	if err != nil {
		return "", err
	}
	if hasPrevious {
		return ActionKeep, nil
	}

	from, to := st.Path(s, Current), st.Path(s, Previous)
	if err := os.Rename(from, to); err != nil {
		return "", &RotationError{Subject: s.Token, Op: "rename", Path: from, Err: err}
	}
	return ActionPromote, nil
}

// WriteCurrent stores a freshly captured PNG in the current slot,
// replacing any previous content.
func (st *Store) WriteCurrent(s subject.Subject, data []byte) error {
	return st.write(s, Current, data)
}

// WriteDiff encodes the diff image into the diff slot and returns its path.
func (st *Store) WriteDiff(s subject.Subject, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", &RotationError{Subject: s.Token, Op: "encode", Path: st.Path(s, Diff), Err: err}
	}
	if err := st.write(s, Diff, buf.Bytes()); err != nil {
		return "", err
	}
	return st.Path(s, Diff), nil
}

// RemoveDiff deletes a stale diff artifact. Missing is not an error.
func (st *Store) RemoveDiff(s subject.Subject) error {
	return st.remove(s, Diff)
}

// Load decodes a slot image. Returns an error wrapping ErrNoSlot if absent.
func (st *Store) Load(s subject.Subject, k Kind) (image.Image, error) {
	p := st.Path(s, k)
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &RotationError{Subject: s.Token, Op: "load", Path: p, Err: ErrNoSlot}
	}
	if err != nil {
		return nil, &RotationError{Subject: s.Token, Op: "load", Path: p, Err: err}
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, &RotationError{Subject: s.Token, Op: "load", Path: p, Err: err}
	}
	return img, nil
}

func (st *Store) remove(s subject.Subject, k Kind) error {
	p := st.Path(s, k)
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &RotationError{Subject: s.Token, Op: "remove", Path: p, Err: err}
	}
	return nil
}

// write replaces a slot atomically so a crash never leaves a truncated PNG.
func (st *Store) write(s subject.Subject, k Kind, data []byte) error {
	p := st.Path(s, k)
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &RotationError{Subject: s.Token, Op: "write", Path: p, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+string(k)+"-*.png")
	if err != nil {
		return &RotationError{Subject: s.Token, Op: "write", Path: p, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &RotationError{Subject: s.Token, Op: "write", Path: p, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &RotationError{Subject: s.Token, Op: "write", Path: p, Err: err}
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return &RotationError{Subject: s.Token, Op: "write", Path: p, Err: err}
	}
	return nil
}
