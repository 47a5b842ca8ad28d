package mediainfo

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
)

// Static is an Inspector that returns fixed attributes per file extension.
// It backs tests and runs with attribute checks disabled.
type Static struct {
	mu sync.Mutex

	// ByExt maps a lower-case extension (".dpx") to the attributes returned.
	ByExt map[string]Attributes

	// Err, when set, is returned for every call.
	Err error

	calls int
}

var _ Inspector = (*Static)(nil)

// Inspect returns the attributes configured for the file's extension.
func (s *Static) Inspect(ctx context.Context, path string) (Attributes, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	attrs, ok := s.ByExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, ErrNoMediaTrack
	}
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out, nil
}

// Calls returns the number of Inspect calls.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
