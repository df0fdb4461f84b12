package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"github.com/algoviz-dev/algoviz/pkg/state"
)

// DiskStore writes replay logs as JSON files under a directory.
type DiskStore struct {
	dir string
}

// NewDiskStore creates a DiskStore, ensuring the directory exists.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// SaveReplay writes one file per archived session, named by code and
// eviction time so repeated codes never clobber each other.
func (s *DiskStore) SaveReplay(ctx context.Context, code string, replay []state.SessionState) error {
	if len(replay) == 0 {
		return ErrEmptyReplay
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := sonic.MarshalIndent(replay, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: marshal replay: %w", err)
	}

	name := fmt.Sprintf("%s-%d.json", code, time.Now().Unix())
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("archive: write replay: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("archive: finalize replay: %w", err)
	}
	return nil
}
