package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/shuryanc/cloudsync/internal/model"
)

// FileState is the persisted projection of one LocalNode, keyed by
// cloud-canonical relative path within a backup's shadow bucket. It is
// the cache spec.md §4.8 calls "keepCache": engine.Sync reads these rows
// as each pass's baseline (the state both sides last agreed on), and
// every pass still scans both sides in full. Adapted from the teacher's
// internal/database.FileState: LocalHash/RemoteHash (whole-file MD5
// strings) become LocalCRC/RemoteCRC (the sparse-sample CRC arrays used
// throughout this module).
type FileState struct {
	RelPath      string
	Size         int64
	MTime        int64 // unix nano
	LocalCRC     [4]uint32
	RemoteCRC    [4]uint32
	IsDir        bool
	LastSyncTime int64
}

// MTimeAsTime converts the stored unix-nano mtime back to a time.Time.
func (f *FileState) MTimeAsTime() time.Time {
	return time.Unix(0, f.MTime)
}

// FromLocalNode captures a LocalNode's content identity as a FileState
// row. localCRC and remoteCRC are passed in separately rather than both
// read off n.Fingerprint, since the local sparse-sample scheme and the
// cloud MD5-derived scheme are not comparable values: a caller that
// conflates them would see every remote-side comparison report Modified
// forever, never Unchanged.
func FromLocalNode(n *model.LocalNode, localCRC, remoteCRC [4]uint32) FileState {
	fs := FileState{
		RelPath:      n.Path(),
		IsDir:        n.Type == model.NodeFolder,
		LastSyncTime: 0,
		LocalCRC:     localCRC,
		RemoteCRC:    remoteCRC,
	}
	if n.Fingerprint != nil {
		fs.Size = n.Fingerprint.Size
		fs.MTime = n.Fingerprint.MTime.UnixNano()
	}
	return fs
}

func shadowFileBucket(backupID uint64) []byte {
	return []byte(shadowBucketName(backupID))
}

// PutFileState persists one row in backupID's shadow bucket, creating it
// if absent.
func (s *ConfigStore) PutFileState(backupID uint64, fs FileState) error {
	fs.LastSyncTime = time.Now().UnixNano()
	data, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("marshal file state: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(shadowFileBucket(backupID))
		if err != nil {
			return err
		}
		return b.Put([]byte(fs.RelPath), data)
	})
}

// GetFileState returns the persisted row for relPath, or ok=false if
// none exists (a fresh node, or keepCache=false cleared the bucket).
func (s *ConfigStore) GetFileState(backupID uint64, relPath string) (FileState, bool, error) {
	var fs FileState
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(shadowFileBucket(backupID))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(relPath))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &fs)
	})
	return fs, ok, err
}

// DeleteFileState removes relPath's cached row, called when a node is
// tombstoned on both sides.
func (s *ConfigStore) DeleteFileState(backupID uint64, relPath string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(shadowFileBucket(backupID))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(relPath))
	})
}

// ListFileStates returns every cached row for backupID; engine.Sync
// loads it as the baseline of each pass.
func (s *ConfigStore) ListFileStates(backupID uint64) (map[string]FileState, error) {
	result := make(map[string]FileState)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(shadowFileBucket(backupID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var fs FileState
			if err := json.Unmarshal(v, &fs); err != nil {
				return fmt.Errorf("decode file state %s: %w", string(k), err)
			}
			result[string(k)] = fs
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
