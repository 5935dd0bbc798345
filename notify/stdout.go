package notify

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

// Stdout writes removal reports as JSON lines to an io.Writer
// (default os.Stdout).
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) SendRemoved(_ context.Context, r Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: "removed", Data: r})
}

func (s *Stdout) Close() error { return nil }
