package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/shuryanc/cloudsync/internal/model"
	"github.com/shuryanc/cloudsync/internal/syncerr"
)

// wireVersion is bumped whenever the encoded row layout changes.
const wireVersion uint32 = 1

// encodeConfig serializes a single SyncConfig row for bucket storage,
// following spec.md §6's documented record layout: `u32 version | u64
// backupId | u16 type | u16 state | u16 enabled | u16 lastError | pstr
// localPath | u64 remoteHandle | pstr remotePath | pstr drivePath | u64
// driveId` (pstr = u16 length | utf-8 bytes), with the conflict policy
// appended after driveId since it postdates that layout. This is also
// the per-record layout used by ExportAll/ImportAll, so the two paths
// share one codec.
func encodeConfig(cfg model.SyncConfig) []byte {
	var buf bytes.Buffer
	writeUint32(&buf, wireVersion)
	writeUint64(&buf, cfg.BackupID)
	writeUint16(&buf, uint16(cfg.Type))
	writeUint16(&buf, uint16(cfg.BackupState))
	writeUint16(&buf, boolToUint16(cfg.Enabled))
	writeUint16(&buf, uint16(cfg.LastError))
	writePStr(&buf, cfg.LocalPath)
	writeUint64(&buf, cfg.RemoteHandle)
	writePStr(&buf, cfg.RemotePath)
	writePStr(&buf, cfg.DrivePath)
	writeUint64(&buf, cfg.DriveID)
	writeUint16(&buf, uint16(cfg.Conflict))
	return buf.Bytes()
}

func decodeConfig(data []byte) (model.SyncConfig, error) {
	r := bytes.NewReader(data)
	var cfg model.SyncConfig

	version, err := readUint32(r)
	if err != nil {
		return cfg, err
	}
	if version != wireVersion {
		return cfg, fmt.Errorf("decode config: unsupported record version %d", version)
	}

	if cfg.BackupID, err = readUint64(r); err != nil {
		return cfg, err
	}
	typ, err := readUint16(r)
	if err != nil {
		return cfg, err
	}
	cfg.Type = model.SyncType(typ)

	state, err := readUint16(r)
	if err != nil {
		return cfg, err
	}
	cfg.BackupState = model.BackupState(state)

	enabled, err := readUint16(r)
	if err != nil {
		return cfg, err
	}
	cfg.Enabled = enabled != 0

	lastErr, err := readUint16(r)
	if err != nil {
		return cfg, err
	}
	cfg.LastError = syncerr.Code(lastErr)

	if cfg.LocalPath, err = readPStr(r); err != nil {
		return cfg, err
	}
	if cfg.RemoteHandle, err = readUint64(r); err != nil {
		return cfg, err
	}
	if cfg.RemotePath, err = readPStr(r); err != nil {
		return cfg, err
	}
	if cfg.DrivePath, err = readPStr(r); err != nil {
		return cfg, err
	}
	if cfg.DriveID, err = readUint64(r); err != nil {
		return cfg, err
	}

	conflict, err := readUint16(r)
	if err != nil {
		return cfg, err
	}
	cfg.Conflict = model.ConflictPolicy(conflict)

	return cfg, nil
}

func boolToUint16(v bool) uint16 {
	if v {
		return 1
	}
	return 0
}

// ExportAll encodes every persisted config into the wire envelope:
// u32 count | (u32 recordLen | record)*. Each record already carries its
// own u32 version per spec.md §6, so the envelope itself needs none.
func (s *ConfigStore) ExportAll() ([]byte, error) {
	var records [][]byte
	err := s.ForEach(func(cfg model.SyncConfig) error {
		records = append(records, encodeConfig(cfg))
		return nil
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(records)))
	for _, rec := range records {
		writeUint32(&buf, uint32(len(rec)))
		buf.Write(rec)
	}
	return buf.Bytes(), nil
}

// ImportAll decodes the envelope produced by ExportAll and persists each
// record under a freshly assigned backup ID, forced Enabled=false per
// spec.md §4.8 ("imported configs start disabled"). Returns the new IDs
// in import order.
func (s *ConfigStore) ImportAll(data []byte) ([]uint64, error) {
	r := bytes.NewReader(data)

	count, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("import: read count: %w", err)
	}

	ids := make([]uint64, 0, count)
	for i := uint32(0); i < count; i++ {
		recLen, err := readUint32(r)
		if err != nil {
			return ids, fmt.Errorf("import: record %d length: %w", i, err)
		}
		rec := make([]byte, recLen)
		if _, err := io.ReadFull(r, rec); err != nil {
			return ids, fmt.Errorf("import: record %d body: %w", i, err)
		}
		cfg, err := decodeConfig(rec)
		if err != nil {
			return ids, fmt.Errorf("import: record %d decode: %w", i, err)
		}
		cfg.Enabled = false

		id, err := s.Add(cfg)
		if err != nil {
			return ids, fmt.Errorf("import: record %d persist: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

// writePStr writes a spec.md §6 pstr: a u16 length prefix followed by
// the UTF-8 bytes.
func writePStr(buf *bytes.Buffer, s string) {
	writeUint16(buf, uint16(len(s)))
	buf.WriteString(s)
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// readPStr reads a spec.md §6 pstr: a u16 length prefix followed by the
// UTF-8 bytes.
func readPStr(r io.Reader) (string, error) {
	n, err := readUint16(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
