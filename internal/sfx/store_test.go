package sfx

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestOpenStore_CreatesDatabase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "guild", StoreFile)
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("database not written: %v", err)
	}
	if !strings.Contains(string(data), "sounds:") {
		t.Errorf("database = %q, want sfx.sounds layout", data)
	}
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), StoreFile)
	s, err := OpenStore(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, alias := range []string{"zap", "airhorn", "bruh"} {
		if err := s.Set(alias, "/sounds/"+alias+".mp3"); err != nil {
			t.Fatalf("Set(%s): %v", alias, err)
		}
	}
	if _, err := s.Delete("zap"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	reopened, err := OpenStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got, want := reopened.Aliases(), []string{"airhorn", "bruh"}; !slices.Equal(got, want) {
		t.Errorf("Aliases() = %v, want %v", got, want)
	}
	if p, ok := reopened.Get("bruh"); !ok || p != "/sounds/bruh.mp3" {
		t.Errorf("Get(bruh) = (%q, %v)", p, ok)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestStore_ReadsExistingLayout(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), StoreFile)
	data := "sfx:\n  sounds:\n    yay: data/1/sounds/yay.mp3\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if p, ok := s.Get("yay"); !ok || p != "data/1/sounds/yay.mp3" {
		t.Errorf("Get(yay) = (%q, %v)", p, ok)
	}
}

func TestStore_InvalidYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), StoreFile)
	if err := os.WriteFile(path, []byte("sfx: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenStore(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStore_DeleteUnknown(t *testing.T) {
	t.Parallel()

	s, err := OpenStore(filepath.Join(t.TempDir(), StoreFile))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Delete("ghost"); !errors.Is(err, ErrUnknownAlias) {
		t.Errorf("err = %v, want ErrUnknownAlias", err)
	}
}

func TestSuggester(t *testing.T) {
	t.Parallel()

	aliases := []string{"airhorn", "bruh", "sad"}
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "typo", input: "airhorm", want: "airhorn", wantOK: true},
		{name: "case", input: "AIRHORM", want: "airhorn", wantOK: true},
		{name: "unrelated", input: "zzzzzz", wantOK: false},
		{name: "exact", input: "bruh", wantOK: false},
		{name: "empty", input: "", wantOK: false},
	}

	s := NewSuggester()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := s.Suggest(tt.input, aliases)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Suggest(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
