// Package disk implements storage.Backend backed by the local filesystem.
//
// Each font record is one file: a fixed header, the JSON meta table, then the
// raw font bytes. Writing a single file through a fsynced temp file plus
// rename keeps the meta table and the font bytes a transactional unit even
// across crashes.
package disk

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pkt.systems/glyphd/internal/loggingutil"
	"pkt.systems/glyphd/internal/storage"
	"pkt.systems/pslog"
)

const (
	recordSuffix  = ".font"
	recordMagic   = "GDR1"
	maxMetaLength = 64 << 20
)

// Config captures the tunables for the disk backend.
type Config struct {
	// Root is the directory holding font records. Created when missing.
	Root string
	// Logger receives backend diagnostics. Nil discards.
	Logger pslog.Logger
}

// Store implements storage.Backend on the local filesystem.
type Store struct {
	root   string
	tmpDir string
	logger pslog.Logger

	locks sync.Map
}

// New prepares the root and temp directories and returns a ready store.
func New(cfg Config) (*Store, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("disk: root directory required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("disk: resolve root: %w", err)
	}
	tmpDir := filepath.Join(abs, ".tmp")
	for _, dir := range []string{abs, tmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("disk: create %s: %w", dir, err)
		}
	}
	return &Store{
		root:   abs,
		tmpDir: tmpDir,
		logger: loggingutil.EnsureLogger(cfg.Logger),
	}, nil
}

func (s *Store) keyLock(key string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Store) recordPath(key string) string {
	return filepath.Join(s.root, url.PathEscape(key)+recordSuffix)
}

// LoadFont reads and decodes the record for key.
func (s *Store) LoadFont(ctx context.Context, key string) (*storage.FontRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mu := s.keyLock(key)
	mu.Lock()
	defer mu.Unlock()

	payload, err := os.ReadFile(s.recordPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("disk: read record: %w", err)
	}
	rec, err := decodeRecord(payload)
	if err != nil {
		s.logger.Warn("store.record.corrupt", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %s", storage.ErrCorrupt, err)
	}
	return rec, nil
}

// StoreFont encodes and atomically replaces the record for key.
func (s *Store) StoreFont(ctx context.Context, key string, rec *storage.FontRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.Meta == nil {
		return fmt.Errorf("disk: record meta required")
	}
	payload, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("disk: encode record: %w", err)
	}
	mu := s.keyLock(key)
	mu.Lock()
	defer mu.Unlock()
	return s.writeBytesAtomic(s.recordPath(key), payload)
}

// DeleteFont removes the record for key. Missing records are not an error.
func (s *Store) DeleteFont(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mu := s.keyLock(key)
	mu.Lock()
	defer mu.Unlock()
	if err := os.Remove(s.recordPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("disk: remove record: %w", err)
	}
	_ = syncDir(s.root)
	return nil
}

// Keys lists the font keys with a record on disk.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("disk: list records: %w", err)
	}
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, recordSuffix))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Close satisfies storage.Backend.
func (s *Store) Close() error {
	return nil
}

func (s *Store) writeBytesAtomic(dest string, payload []byte) error {
	tmp, err := os.CreateTemp(s.tmpDir, "glyphd-record-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return syncDir(filepath.Dir(dest))
}

func encodeRecord(rec *storage.FontRecord) ([]byte, error) {
	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(recordMagic) + 4 + len(meta) + len(rec.Bytes))
	buf.WriteString(recordMagic)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(meta)))
	buf.Write(length[:])
	buf.Write(meta)
	buf.Write(rec.Bytes)
	return buf.Bytes(), nil
}

func decodeRecord(payload []byte) (*storage.FontRecord, error) {
	headerLen := len(recordMagic) + 4
	if len(payload) < headerLen {
		return nil, fmt.Errorf("truncated header (%d bytes)", len(payload))
	}
	if string(payload[:len(recordMagic)]) != recordMagic {
		return nil, fmt.Errorf("bad magic %q", payload[:len(recordMagic)])
	}
	metaLen := binary.BigEndian.Uint32(payload[len(recordMagic):headerLen])
	if metaLen > maxMetaLength || int(metaLen) > len(payload)-headerLen {
		return nil, fmt.Errorf("meta length %d exceeds payload", metaLen)
	}
	meta := &storage.FontMeta{}
	if err := json.Unmarshal(payload[headerLen:headerLen+int(metaLen)], meta); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	fontBytes := payload[headerLen+int(metaLen):]
	rec := &storage.FontRecord{Meta: meta}
	if len(fontBytes) > 0 {
		rec.Bytes = append([]byte(nil), fontBytes...)
	}
	return rec, nil
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
