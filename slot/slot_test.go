package slot

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/shotcheck/subject"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	st := NewStore(filepath.Join(root, "images"), filepath.Join(root, "diffs"))
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}
	return st
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readFile(t *testing.T, p string) []byte {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return data
}

func mustExist(t *testing.T, st *Store, s subject.Subject, k Kind, want bool) {
	t.Helper()
	got, err := st.Exists(s, k)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("%s exists: got %v, want %v", k, got, want)
	}
}

func TestPath_Layout(t *testing.T) {
	st := NewStore("images", "diffs")
	s := subject.New("Sub/Foo.elm")

	if got := st.Path(s, Current); got != filepath.Join("images", "Sub--Foo--current.png") {
		t.Errorf("current: %s", got)
	}
	if got := st.Path(s, Previous); got != filepath.Join("images", "Sub--Foo--previous.png") {
		t.Errorf("previous: %s", got)
	}
	if got := st.Path(s, Diff); got != filepath.Join("diffs", "Sub--Foo--diff.png") {
		t.Errorf("diff: %s", got)
	}
}

func TestRotate_FirstRun(t *testing.T) {
	// WHAT: No current slot means nothing to rotate.
	// WHY: First run establishes current only; previous must stay absent.
	st := newTestStore(t)
	s := subject.New("Foo.elm")

	act, err := st.Rotate(s, Normal)
	if err != nil {
		t.Fatal(err)
	}
	if act != ActionFirstRun {
		t.Fatalf("action: got %s, want %s", act, ActionFirstRun)
	}
	if err := st.WriteCurrent(s, pngBytes(t, color.White)); err != nil {
		t.Fatal(err)
	}
	mustExist(t, st, s, Current, true)
	mustExist(t, st, s, Previous, false)
}

func TestRotate_PromotesWhenNoPrevious(t *testing.T) {
	// WHAT: Existing current without previous is promoted.
	// WHY: The first promotion produces the baseline every later run compares against.
	st := newTestStore(t)
	s := subject.New("Foo.elm")

	old := pngBytes(t, color.White)
	fresh := pngBytes(t, color.Black)
	if err := st.WriteCurrent(s, old); err != nil {
		t.Fatal(err)
	}

	act, err := st.Rotate(s, Normal)
	if err != nil {
		t.Fatal(err)
	}
	if act != ActionPromote {
		t.Fatalf("action: got %s, want %s", act, ActionPromote)
	}
	mustExist(t, st, s, Current, false)

	if err := st.WriteCurrent(s, fresh); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(readFile(t, st.Path(s, Previous)), old) {
		t.Error("previous does not hold the old current")
	}
	if !bytes.Equal(readFile(t, st.Path(s, Current)), fresh) {
		t.Error("current does not hold the fresh capture")
	}
}

func TestRotate_KeepsExistingPrevious(t *testing.T) {
	// WHAT: With both slots present the baseline is left alone.
	// WHY: Baselines must not drift run after run without an explicit reset.
	st := newTestStore(t)
	s := subject.New("Foo.elm")

	baseline := pngBytes(t, color.White)
	if err := st.write(s, Previous, baseline); err != nil {
		t.Fatal(err)
	}
	if err := st.WriteCurrent(s, pngBytes(t, color.Black)); err != nil {
		t.Fatal(err)
	}

	act, err := st.Rotate(s, Normal)
	if err != nil {
		t.Fatal(err)
	}
	if act != ActionKeep {
		t.Fatalf("action: got %s, want %s", act, ActionKeep)
	}

	fresh := pngBytes(t, color.Gray{Y: 128})
	if err := st.WriteCurrent(s, fresh); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(readFile(t, st.Path(s, Previous)), baseline) {
		t.Error("previous changed during keep")
	}
	if !bytes.Equal(readFile(t, st.Path(s, Current)), fresh) {
		t.Error("current not replaced")
	}
}

func TestRotate_ResetClearsAllSlots(t *testing.T) {
	st := newTestStore(t)
	s := subject.New("Foo.elm")

	if err := st.write(s, Previous, pngBytes(t, color.White)); err != nil {
		t.Fatal(err)
	}
	if err := st.WriteCurrent(s, pngBytes(t, color.White)); err != nil {
		t.Fatal(err)
	}
	if _, err := st.WriteDiff(s, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}

	act, err := st.Rotate(s, Reset)
	if err != nil {
		t.Fatal(err)
	}
	if act != ActionReset {
		t.Fatalf("action: got %s", act)
	}
	mustExist(t, st, s, Previous, false)
	mustExist(t, st, s, Current, false)
	mustExist(t, st, s, Diff, false)
}

func TestRotate_ResetIdempotent(t *testing.T) {
	// WHAT: Reset on a subject without slots is a no-op.
	// WHY: Reset runs cover every subject, including never-captured ones.
	st := newTestStore(t)
	s := subject.New("Never.elm")

	for i := 0; i < 2; i++ {
		if _, err := st.Rotate(s, Reset); err != nil {
			t.Fatalf("reset #%d: %v", i, err)
		}
	}
}

func TestRotate_RemoveFailureIsRotationError(t *testing.T) {
	st := newTestStore(t)
	s := subject.New("Foo.elm")

	// A non-empty directory in place of the current slot cannot be removed.
	blocker := st.Path(s, Current)
	if err := os.MkdirAll(filepath.Join(blocker, "child"), 0o755); err != nil {
		t.Fatal(err)
	}

	_, err := st.Rotate(s, Reset)
	var re *RotationError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RotationError, got %T %v", err, err)
	}
	if re.Op != "remove" || re.Subject != "Foo" {
		t.Errorf("rotation error: %+v", re)
	}
}

func TestLoad_Missing(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Load(subject.New("Foo.elm"), Previous)
	if !errors.Is(err, ErrNoSlot) {
		t.Fatalf("expected ErrNoSlot, got %v", err)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	st := newTestStore(t)
	s := subject.New("Foo.elm")
	if err := st.WriteCurrent(s, []byte("not a png")); err != nil {
		t.Fatal(err)
	}
	_, err := st.Load(s, Current)
	var re *RotationError
	if !errors.As(err, &re) || re.Op != "load" {
		t.Fatalf("expected load RotationError, got %v", err)
	}
}

func TestWriteDiff_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	s := subject.New("Foo.elm")

	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	p, err := st.WriteDiff(s, img)
	if err != nil {
		t.Fatal(err)
	}
	if p != st.Path(s, Diff) {
		t.Errorf("path: got %s", p)
	}
	got, err := st.Load(s, Diff)
	if err != nil {
		t.Fatal(err)
	}
	if got.Bounds().Dx() != 3 || got.Bounds().Dy() != 2 {
		t.Errorf("bounds: %v", got.Bounds())
	}

	if err := st.RemoveDiff(s); err != nil {
		t.Fatal(err)
	}
	if err := st.RemoveDiff(s); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	mustExist(t, st, s, Diff, false)
}
