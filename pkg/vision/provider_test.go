package vision

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{"b.jpg": "B", "a.png": "A", "notes.txt": "x"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}

	p, err := NewDirProvider(dir)
	if err != nil {
		t.Fatalf("NewDirProvider: %v", err)
	}
	if p.Len() != 2 {
		t.Fatalf("Len = %d, want 2", p.Len())
	}

	var got string
	for i := 0; i < 3; i++ {
		b, err := p.CaptureFrame()
		if err != nil {
			t.Fatal(err)
		}
		got += string(b)
	}
	if got != "ABA" {
		t.Errorf("frames = %q, want ABA", got)
	}
}

func TestDirProviderEmpty(t *testing.T) {
	if _, err := NewDirProvider(t.TempDir()); !errors.Is(err, ErrNoFrames) {
		t.Errorf("expected ErrNoFrames, got %v", err)
	}
}
