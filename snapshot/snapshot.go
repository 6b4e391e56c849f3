// Package snapshot persists checkpoint state as JSON files.
//
// Every file is written to a temporary sibling and renamed into place, so a
// reader sees either the previous snapshot or the new one, never a partial
// write. Files carry a small envelope:
//
//	{"version": 1, "kind": "cache", "saved_at": "...", "data": {...}}
//
// Files without an envelope are treated as version 0 and decoded directly
// into the target value.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// Version is the envelope version written by this package
const Version = 1

var (
	// ErrUnsupportedVersion is returned for files written by a newer release
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	// ErrKindMismatch is returned when a file holds a different kind of state
	ErrKindMismatch = errors.New("snapshot kind mismatch")
)

type envelope struct {
	Version int             `json:"version"`
	Kind    string          `json:"kind"`
	SavedAt time.Time       `json:"saved_at"`
	Data    json.RawMessage `json:"data"`
}

// Write stores v under the given kind at path
func Write(path, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", kind, err)
	}

	buf, err := json.MarshalIndent(envelope{
		Version: Version,
		Kind:    kind,
		SavedAt: time.Now().UTC(),
		Data:    data,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s snapshot: %w", kind, err)
	}

	if err := WriteFileAtomic(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write %s snapshot: %w", kind, err)
	}
	return nil
}

// Read loads the snapshot at path into v. A missing file returns an error
// matching os.ErrNotExist.
func Read(path, kind string, v any) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(buf, &fields); err != nil {
		return fmt.Errorf("failed to decode %s snapshot %s: %w", kind, path, err)
	}

	_, hasVersion := fields["version"]
	_, hasData := fields["data"]
	if !hasVersion || !hasData {
		if err := json.Unmarshal(buf, v); err != nil {
			return fmt.Errorf("failed to decode legacy %s snapshot %s: %w", kind, path, err)
		}
		return nil
	}

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return fmt.Errorf("failed to decode %s snapshot %s: %w", kind, path, err)
	}
	if env.Version > Version {
		return fmt.Errorf("%w: %s has version %d", ErrUnsupportedVersion, path, env.Version)
	}
	if env.Kind != "" && env.Kind != kind {
		return fmt.Errorf("%w: %s holds %q, want %q", ErrKindMismatch, path, env.Kind, kind)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s snapshot %s: %w", kind, path, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it over path
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
