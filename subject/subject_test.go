package subject

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("module Main exposing (main)\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestTokenFor(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Foo.elm", "Foo"},
		{"Sub/Foo.elm", "Sub--Foo"},
		{"a/b/c/Deep.elm", "a--b--c--Deep"},
		{"NoExt", "NoExt"},
	}
	for _, tc := range tests {
		if got := TokenFor(tc.in); got != tc.want {
			t.Errorf("TokenFor(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDiscover_SelectsAndSorts(t *testing.T) {
	// WHAT: Discovery picks .elm files, skips elm-stuff and Data.elm, sorts by path.
	// WHY: Slot identity depends on stable tokens across runs.
	root := writeTree(t,
		"Zeta.elm",
		"Alpha.elm",
		"Data.elm",
		"README.md",
		"Layout/Row.elm",
		"Layout/Data.elm",
		"elm-stuff/generated/Cache.elm",
	)

	got, err := Discover(root, DefaultOptions())
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	want := []Subject{
		{Path: "Alpha.elm", Token: "Alpha"},
		{Path: "Layout/Row.elm", Token: "Layout--Row"},
		{Path: "Zeta.elm", Token: "Zeta"},
	}
	if len(got) != len(want) {
		t.Fatalf("discover: got %d subjects %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("subject[%d]: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDiscover_KeepsLastSubject(t *testing.T) {
	// WHAT: The last subject in order is returned like every other.
	// WHY: A len-1 loop silently dropped one page from every run.
	root := writeTree(t, "A.elm", "B.elm", "C.elm")

	got, err := Discover(root, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d subjects, want 3", len(got))
	}
	if got[2].Token != "C" {
		t.Errorf("last subject: got %q, want C", got[2].Token)
	}
}

func TestDiscover_Denylist(t *testing.T) {
	root := writeTree(t, "Stable.elm", "Live/Weather.elm", "Clock.elm")
	opts := DefaultOptions()
	opts.Denylist = []string{"Live/Weather.elm", "Clock"}

	got, err := Discover(root, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Token != "Stable" {
		t.Fatalf("denylist: got %v, want [Stable]", got)
	}
}

func TestDiscover_EmptyTree(t *testing.T) {
	got, err := Discover(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want none", got)
	}
}

func TestDiscover_MissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), DefaultOptions())
	var de *DiscoveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DiscoveryError, got %T %v", err, err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestDiscover_TokenCollision(t *testing.T) {
	// WHAT: Two paths flattening to one token fail discovery, naming both.
	// WHY: They would share slot files and overwrite each other's captures.
	root := writeTree(t, "A/B.elm", "A--B.elm")

	_, err := Discover(root, DefaultOptions())
	var de *DiscoveryError
	if !errors.As(err, &de) || !errors.Is(err, ErrTokenCollision) {
		t.Fatalf("expected token collision, got %v", err)
	}
	for _, p := range []string{"A/B.elm", "A--B.elm"} {
		if !strings.Contains(err.Error(), p) {
			t.Errorf("error %q does not name %s", err, p)
		}
	}
}

func TestDiscover_FollowsSymlinkedDirs(t *testing.T) {
	root := writeTree(t, "Main.elm")
	shared := writeTree(t, "Card.elm", "elm-stuff/Gen.elm")
	if err := os.Symlink(shared, filepath.Join(root, "Shared")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	// A link back to the root must not be walked twice.
	if err := os.Symlink(root, filepath.Join(root, "Loop")); err != nil {
		t.Fatal(err)
	}

	got, err := Discover(root, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Main.elm", "Shared/Card.elm"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, p := range want {
		if got[i].Path != p {
			t.Errorf("subject[%d]: got %s, want %s", i, got[i].Path, p)
		}
	}
}
