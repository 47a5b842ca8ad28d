// Package mediainfo reads technical attributes of media files by running
// the MediaInfo command-line tool in JSON output mode.
package mediainfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultBinary is the executable looked up on PATH.
const DefaultBinary = "mediainfo"

// DefaultTimeout bounds a single inspection.
const DefaultTimeout = 2 * time.Minute

// Sentinel errors. ErrToolUnavailable and ErrInspectFailed mean no further
// file can be validated and abort the run; ErrInspectTimeout and
// ErrNoMediaTrack affect only the file being inspected.
var (
	ErrToolUnavailable = errors.New("mediainfo is not installed or not on PATH")
	ErrInspectFailed   = errors.New("mediainfo failed")
	ErrInspectTimeout  = errors.New("mediainfo timed out")
	ErrNoMediaTrack    = errors.New("mediainfo reported no media track")
)

// Attributes are the scalar fields of a file's primary media track.
type Attributes map[string]string

// Get returns the named field and whether it is present.
func (a Attributes) Get(field string) (string, bool) {
	v, ok := a[field]
	return v, ok
}

// Inspector extracts technical attributes from a media file.
type Inspector interface {
	Inspect(ctx context.Context, path string) (Attributes, error)
}

// Exec runs the mediainfo binary once per file.
type Exec struct {
	// Binary is the executable name or path. Empty uses DefaultBinary.
	Binary string

	// Timeout bounds each inspection. Zero uses DefaultTimeout.
	Timeout time.Duration
}

var _ Inspector = (*Exec)(nil)

// Check verifies that the binary can be found.
func (e *Exec) Check() error {
	if _, err := exec.LookPath(e.binary()); err != nil {
		return fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}
	return nil
}

// Inspect runs `mediainfo --Output=JSON <path>` and returns the fields of
// the first track that is not the General container track.
func (e *Exec) Inspect(ctx context.Context, path string) (Attributes, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("mediainfo inspect: empty path")
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binary(), "--Output=JSON", path)
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrToolUnavailable, err)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %s", ErrInspectTimeout, timeout, path)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w on %s: %v: %s", ErrInspectFailed, path, err,
				strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%w on %s: %v", ErrInspectFailed, path, err)
	}

	attrs, err := ParseJSON(output)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return attrs, nil
}

func (e *Exec) binary() string {
	if b := strings.TrimSpace(e.Binary); b != "" {
		return b
	}
	return DefaultBinary
}

type report struct {
	Media *struct {
		Tracks []map[string]json.RawMessage `json:"track"`
	} `json:"media"`
}

// ParseJSON extracts the primary track from mediainfo JSON output.
// Nested values are dropped; numbers and booleans are rendered as text.
func ParseJSON(data []byte) (Attributes, error) {
	var r report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("mediainfo parse: %w", err)
	}
	if r.Media == nil {
		return nil, ErrNoMediaTrack
	}

	for _, track := range r.Media.Tracks {
		var trackType string
		if raw, ok := track["@type"]; ok {
			_ = json.Unmarshal(raw, &trackType)
		}
		if strings.EqualFold(trackType, "General") {
			continue
		}
		return flatten(track), nil
	}
	return nil, ErrNoMediaTrack
}

func flatten(track map[string]json.RawMessage) Attributes {
	attrs := make(Attributes, len(track))
	for key, raw := range track {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		switch val := v.(type) {
		case string:
			attrs[key] = val
		case float64:
			attrs[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			attrs[key] = strconv.FormatBool(val)
		}
	}
	return attrs
}
