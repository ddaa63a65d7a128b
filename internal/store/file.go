package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister keeps the snapshot in a JSON file. Writes go to a sibling
// temp file which is then renamed over the target.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) Path() string {
	return p.path
}

func (p *FilePersister) Load(ctx context.Context) (Snapshot, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot file: %w", err)
	}
	return decodeSnapshot(data)
}

func (p *FilePersister) Save(ctx context.Context, snapshot Snapshot) error {
	payload, err := encodeSnapshot(snapshot, true)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	return nil
}

func encodeSnapshot(snapshot Snapshot, indent bool) ([]byte, error) {
	if snapshot.Issues == nil {
		snapshot.Issues = []Issue{}
	}
	var (
		payload []byte
		err     error
	)
	if indent {
		payload, err = json.MarshalIndent(snapshot, "", "  ")
	} else {
		payload, err = json.Marshal(snapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(payload, '\n'), nil
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Snapshot{}, fmt.Errorf("decode snapshot: empty payload: %w", ErrCorruptSnapshot)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w: %w", ErrCorruptSnapshot, err)
	}
	return snapshot, nil
}
