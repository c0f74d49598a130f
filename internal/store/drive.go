package store

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/shuryanc/cloudsync/internal/model"
)

const driveMarkerDir = ".cloudsync"
const driveIDFile = "drive-id"

// OpenDrive reads (or creates) the 8-byte little-endian drive ID stamped
// at <drivePath>/.cloudsync/drive-id and returns every persisted config
// bound to it, reviving each via Reenable semantics (spec.md §4.8
// "external backups ... resume mirroring, never monitoring, on
// reconnection").
func (s *ConfigStore) OpenDrive(drivePath string) ([]model.SyncConfig, error) {
	driveID, err := readOrCreateDriveID(drivePath)
	if err != nil {
		return nil, err
	}

	var matches []model.SyncConfig
	err = s.ForEach(func(cfg model.SyncConfig) error {
		if cfg.IsExternal() && cfg.DriveID == driveID {
			matches = append(matches, cfg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range matches {
		matches[i].BackupState = model.StateMirroring
		if err := s.SetBackupState(matches[i].BackupID, model.StateMirroring); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

func readOrCreateDriveID(drivePath string) (uint64, error) {
	markerDir := filepath.Join(drivePath, driveMarkerDir)
	markerFile := filepath.Join(markerDir, driveIDFile)

	data, err := os.ReadFile(markerFile)
	if err == nil && len(data) == 8 {
		return binary.LittleEndian.Uint64(data), nil
	}
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("read drive id: %w", err)
	}

	if err := os.MkdirAll(markerDir, 0755); err != nil {
		return 0, fmt.Errorf("create drive marker dir: %w", err)
	}

	id, err := newDriveID()
	if err != nil {
		return 0, err
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, id)
	if err := os.WriteFile(markerFile, buf, 0644); err != nil {
		return 0, fmt.Errorf("write drive id: %w", err)
	}
	return id, nil
}

// newDriveID draws 8 random bytes via crypto/rand, folding a uuid.UUID's
// entropy in as the on-disk nonce companion spec.md §9 calls for so two
// drives formatted back-to-back on the same host never collide.
func newDriveID() (uint64, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return 0, fmt.Errorf("generate drive id: %w", err)
	}
	tag := uuid.New()
	id := binary.LittleEndian.Uint64(raw[:])
	for i := 0; i < 8; i++ {
		id ^= uint64(tag[i]) << (8 * i)
	}
	return id, nil
}
