package maple

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/dBench/lib/codec"
	"github.com/ValentinKolb/dBench/lib/db"
	"github.com/ValentinKolb/dBench/lib/db/engines/maple/internal"
)

// File format identifier and version
const (
	magicNum     = "MAPLEDB\x00"
	mapleVersion = 4
)

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save writes the latest visible version of every record to w. Superseded
// versions and tombstones are not persisted.
//
// Thread-safety: Each table is read under its read lock, writers on other
// tables are not blocked.
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type snapshot struct {
		name, keyColumn string
		rows            []internal.Version
	}
	var tables []snapshot
	maple.tables.Range(func(name string, t *table) bool {
		t.mu.RLock()
		defer t.mu.RUnlock()
		s := snapshot{name: name, keyColumn: t.data.KeyColumn}
		t.data.Range("", internal.Latest, func(v internal.Version) bool {
			s.rows = append(s.rows, v)
			return true
		})
		tables = append(tables, s)
		return true
	})

	// header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(tables))); err != nil {
		return err
	}

	for _, s := range tables {
		if err := writeString(bw, s.name); err != nil {
			return err
		}
		if err := writeString(bw, s.keyColumn); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint64(len(s.rows))); err != nil {
			return err
		}
		for _, v := range s.rows {
			if err := writeString(bw, v.Key); err != nil {
				return err
			}
			if err := writeFields(bw, v.Fields); err != nil {
				return err
			}
		}
	}

	return bw.Flush()
}

// Load replaces the content of the database with a snapshot written by Save.
// All loaded records share one fresh commit timestamp.
//
// Thread-safety: This function is not thread-safe and should not be called concurrently
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var tableCount uint32
	if err := binary.Read(br, binary.LittleEndian, &tableCount); err != nil {
		return err
	}

	maple.tables.Clear()
	ts := maple.commitTs()

	for i := uint32(0); i < tableCount; i++ {
		name, err := readString(br)
		if err != nil {
			return err
		}
		keyColumn, err := readString(br)
		if err != nil {
			return err
		}
		var rowCount uint64
		if err := binary.Read(br, binary.LittleEndian, &rowCount); err != nil {
			return err
		}

		t, _ := maple.table(name, true)
		t.data.KeyColumn = keyColumn
		for j := uint64(0); j < rowCount; j++ {
			key, err := readString(br)
			if err != nil {
				return err
			}
			fields, err := readFields(br)
			if err != nil {
				return err
			}
			t.data.Rows.Set(internal.Version{Key: key, Ts: ts, Fields: fields})
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// File-backed instances
// --------------------------------------------------------------------------

// fileBackend saves the database to a file when it is closed
type fileBackend struct {
	*mapleImpl
	path string
}

// OpenFile creates a backend that is loaded from path (if it exists) and
// written back to path on Close. This lets separate CLI invocations share
// one in-memory data set.
func OpenFile(path string, opts *DBOptions) (db.Backend, error) {
	m := NewMapleDB(opts).(*mapleImpl)

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Infof("snapshot %s does not exist yet, starting empty", path)
	case err != nil:
		_ = m.Close()
		return nil, fmt.Errorf("open snapshot: %w", err)
	default:
		defer f.Close()
		if err := m.Load(f); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("load snapshot %s: %w", path, err)
		}
	}
	return &fileBackend{mapleImpl: m, path: path}, nil
}

// Close stops the garbage collector and saves the database.
func (f *fileBackend) Close() error {
	if err := f.mapleImpl.Close(); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := f.Save(out); err != nil {
		_ = out.Close()
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// --------------------------------------------------------------------------
// Encoding helpers
// --------------------------------------------------------------------------

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// writeFields writes the field count, then name, kind and payload per field
func writeFields(w io.Writer, fields codec.Fields) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(fields))); err != nil {
		return err
	}
	for name, v := range fields {
		if err := writeString(w, name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(v.Kind())); err != nil {
			return err
		}
		if err := writeString(w, string(v.Raw())); err != nil {
			return err
		}
	}
	return nil
}

func readFields(r io.Reader) (codec.Fields, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	fields := make(codec.Fields, n)
	for i := uint32(0); i < n; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var kind uint8
		if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
			return nil, err
		}
		payload, err := readString(r)
		if err != nil {
			return nil, err
		}
		switch codec.Kind(kind) {
		case codec.KindString:
			fields[name] = codec.String(payload)
		case codec.KindBytes:
			fields[name] = codec.Bytes([]byte(payload))
		case codec.KindInt:
			fields[name] = codec.Int(codec.BytesToLong([]byte(payload)))
		default:
			return nil, fmt.Errorf("field %s: unknown kind %d", name, kind)
		}
	}
	return fields, nil
}
