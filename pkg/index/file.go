package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xhad/newsbot/internal/types"
	"go.etcd.io/bbolt"
)

var (
	bucketMeta   = []byte("meta")
	bucketChunks = []byte("chunks")
	keyIndex     = []byte("index")
)

const openTimeout = time.Second

// FileStore persists an Index as a single bbolt file at a fixed path.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Save replaces the file at the store path with ix. The new file is written
// next to the target and renamed over it, so a failed save leaves the
// previous index in place.
func (s *FileStore) Save(ix *Index) (err error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	db, err := bbolt.Open(tmpPath, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		return writeIndex(tx, ix)
	})
	if closeErr := db.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}

	if err = os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	return nil
}

func writeIndex(tx *bbolt.Tx, ix *Index) error {
	meta, err := tx.CreateBucket(bucketMeta)
	if err != nil {
		return err
	}
	chunks, err := tx.CreateBucket(bucketChunks)
	if err != nil {
		return err
	}

	m := ix.Meta()
	m.Version = FormatVersion
	m.Count = ix.Len()
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := meta.Put(keyIndex, data); err != nil {
		return err
	}

	for i, r := range ix.Records() {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", r.ID, err)
		}
		if err := chunks.Put(seqKey(uint64(i)), data); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the index file. It returns types.ErrIndexNotFound when nothing
// has been saved yet and never creates the file.
func (s *FileStore) Load(ctx context.Context) (*Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, types.ErrIndexNotFound
		}
		return nil, fmt.Errorf("failed to stat index file: %w", err)
	}

	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{ReadOnly: true, Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer db.Close()

	var meta Meta
	var records []Record
	err = db.View(func(tx *bbolt.Tx) error {
		mb := tx.Bucket(bucketMeta)
		cb := tx.Bucket(bucketChunks)
		if mb == nil || cb == nil {
			return fmt.Errorf("not a newsbot index")
		}

		data := mb.Get(keyIndex)
		if data == nil {
			return fmt.Errorf("index metadata missing")
		}
		if err := json.Unmarshal(data, &meta); err != nil {
			return fmt.Errorf("bad index metadata: %w", err)
		}
		if meta.Version != FormatVersion {
			return fmt.Errorf("unsupported index format version %d", meta.Version)
		}
		stored := cb.Stats().KeyN
		if meta.Count < 0 || meta.Count != stored {
			return fmt.Errorf("index holds %d chunks, metadata says %d", stored, meta.Count)
		}

		records = make([]Record, 0, stored)
		return cb.ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("bad chunk record: %w", err)
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(records) != meta.Count {
		return nil, fmt.Errorf("index holds %d chunks, metadata says %d", len(records), meta.Count)
	}

	return New(ctx, meta, records)
}

// Open loads the file index for retrieval.
func (s *FileStore) Open(ctx context.Context) (types.Retriever, error) {
	ix, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return ix, nil
}

func seqKey(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}
