package pipeline

import (
	"fmt"
	"io"
	"sync"
)

// Progress writes the human-readable lines a calling process watches for.
// It is safe for concurrent use.
type Progress struct {
	mu sync.Mutex
	w  io.Writer
}

// NewProgress returns a Progress writing to w. A nil writer discards output.
func NewProgress(w io.Writer) *Progress {
	if w == nil {
		w = io.Discard
	}
	return &Progress{w: w}
}

// Printf writes one line.
func (p *Progress) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...) //nolint:errcheck
}

// Features reports the running feature count for an endpoint. Its signature
// matches arcgis.ProgressFunc.
func (p *Progress) Features(_ string, total int) {
	p.Printf("   ... %d items found", total)
}
