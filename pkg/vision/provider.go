package vision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Provider supplies encoded frames.
type Provider interface {
	CaptureFrame() ([]byte, error) // Returns JPEG or PNG image data
}

// ErrNoFrames is returned by a provider with nothing to serve.
var ErrNoFrames = errors.New("vision: no frames")

// DirProvider replays the images in a directory in name order, looping.
type DirProvider struct {
	mu    sync.Mutex
	files []string
	next  int
}

// NewDirProvider lists the .jpg, .jpeg and .png files in dir.
func NewDirProvider(dir string) (*DirProvider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoFrames)
	}
	sort.Strings(files)
	return &DirProvider{files: files}, nil
}

// CaptureFrame returns the next image.
func (p *DirProvider) CaptureFrame() ([]byte, error) {
	p.mu.Lock()
	path := p.files[p.next]
	p.next = (p.next + 1) % len(p.files)
	p.mu.Unlock()

	return os.ReadFile(path)
}

// Len returns the number of images.
func (p *DirProvider) Len() int {
	return len(p.files)
}
