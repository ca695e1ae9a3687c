package datasets

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/Noofbiz/seqbatch/prep"
)

// snapshotVersion is incremented when the on-disk snapshot format changes.
const snapshotVersion = 1

// snapshotFormat is the on-disk representation of a run of minibatches. The
// config is stored so a snapshot is never replayed against a different setup.
type snapshotFormat struct {
	Version   int
	Config    prep.Config
	CreatedAt int64 // unix timestamp
	Batches   []*MinibatchFlat
}

// SaveSnapshot writes batches to path using encoding/gob. The write is atomic:
// the data goes to a temp file in the same directory which is then renamed.
func SaveSnapshot(path string, cfg prep.Config, batches []*MinibatchFlat) error {
	if path == "" {
		return fmt.Errorf("empty snapshot path")
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	sf := snapshotFormat{
		Version:   snapshotVersion,
		Config:    cfg,
		CreatedAt: time.Now().Unix(),
		Batches:   batches,
	}
	if err := gob.NewEncoder(tmpFile).Encode(&sf); err != nil {
		return fmt.Errorf("encode snapshot to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		log.Printf("[Snapshot] warning: sync temp file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp snapshot to target: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot. It fails when the
// format version or the stored config differ from the expected ones.
func LoadSnapshot(path string, cfg prep.Config) ([]*MinibatchFlat, error) {
	if path == "" {
		return nil, fmt.Errorf("empty snapshot path")
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot file %s: %w", path, err)
	}
	defer fh.Close()

	var sf snapshotFormat
	if err := gob.NewDecoder(fh).Decode(&sf); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if sf.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot version mismatch: snapshot=%d expected=%d", sf.Version, snapshotVersion)
	}
	if sf.Config != cfg {
		return nil, fmt.Errorf("snapshot config mismatch: snapshot=%+v expected=%+v", sf.Config, cfg)
	}
	for i, b := range sf.Batches {
		if b == nil || b.Size != cfg.MinibatchSize {
			return nil, fmt.Errorf("snapshot batch %d does not match minibatch size %d", i, cfg.MinibatchSize)
		}
	}
	return sf.Batches, nil
}
