package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"

	"github.com/dkeye/Guardian/internal/codec"
	"github.com/dkeye/Guardian/internal/domain"
	"github.com/dkeye/Guardian/internal/store"
)

var ErrNotImage = errors.New("snapshot is not an image")

// URLPrefix is where the HTTP adapter serves the vault directory.
const URLPrefix = "/vault/"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Index records archived files; *store.Store satisfies it.
type Index interface {
	AddSnapshot(ctx context.Context, rec store.SnapshotRecord) (int64, error)
}

// Vault writes snapshots to a directory and indexes them.
type Vault struct {
	dir   string
	index Index
	seq   atomic.Uint64
}

// NewVault creates dir if needed. index may be nil.
func NewVault(dir string, index Index) (*Vault, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vault: create %s: %w", dir, err)
	}
	return &Vault{dir: dir, index: index}, nil
}

func (v *Vault) Dir() string { return v.dir }

func (v *Vault) Put(ctx context.Context, snap domain.Snapshot) (string, error) {
	b, mt, err := codec.DecodeDataURI(snap.Image)
	if err != nil {
		return "", err
	}
	if !codec.IsImage(mt) {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mt.String())
	}

	name := fmt.Sprintf("SNAP_%s_%s_%d%s",
		unsafeName.ReplaceAllString(string(snap.Room), "_"),
		snap.CapturedAt.UTC().Format("20060102_150405"),
		v.seq.Add(1),
		mt.Extension(),
	)
	path := filepath.Join(v.dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("vault: write %s: %w", name, err)
	}

	if v.index != nil {
		_, err := v.index.AddSnapshot(ctx, store.SnapshotRecord{
			Room:       string(snap.Room),
			ChildID:    snap.ChildID,
			File:       name,
			MIME:       mt.String(),
			Size:       int64(len(b)),
			CapturedAt: snap.CapturedAt,
		})
		if err != nil {
			_ = os.Remove(path)
			return "", err
		}
	}
	return URLPrefix + name, nil
}
