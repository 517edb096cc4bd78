package snapshot

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/quote-search/pkg/errors"
)

// MagicBytes identifies a snapshot file ("QSNP").
const (
	MagicBytes    uint32 = 0x51534E50
	FormatVersion uint32 = 1
	HeaderSize    int    = 24
	fileExt              = ".qsnap"
)

// FileHeader is the fixed header written at the start of every snapshot
// file.
type FileHeader struct {
	Magic    uint32
	Version  uint32
	Checksum uint32
	_        uint32
	Size     uint64
}

// FileStore keeps one file per key in a directory. Writes go to a .tmp file
// that is renamed into place, so readers never see a partial blob.
type FileStore struct {
	dataDir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dataDir, hex.EncodeToString([]byte(key))+fileExt)
}

// Put atomically replaces the blob stored under key.
func (s *FileStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	finalPath := s.path(key)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], crc32.ChecksumIEEE(data))
	binary.LittleEndian.PutUint64(header[16:24], uint64(len(data)))
	if _, err := f.Write(header); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot body: %w", err)
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	return nil
}

// Get reads and verifies the blob stored under key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("snapshot %q: %w", key, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("snapshot file truncated: %w", apperrors.ErrSnapshotInvalid)
	}
	header := FileHeader{
		Magic:    binary.LittleEndian.Uint32(raw[0:4]),
		Version:  binary.LittleEndian.Uint32(raw[4:8]),
		Checksum: binary.LittleEndian.Uint32(raw[8:12]),
		Size:     binary.LittleEndian.Uint64(raw[16:24]),
	}
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("bad magic bytes %x: %w", header.Magic, apperrors.ErrSnapshotInvalid)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported file format %d: %w", header.Version, apperrors.ErrSnapshotInvalid)
	}
	body := raw[HeaderSize:]
	if uint64(len(body)) != header.Size {
		return nil, fmt.Errorf("snapshot body is %d bytes, header says %d: %w", len(body), header.Size, apperrors.ErrSnapshotInvalid)
	}
	if crc32.ChecksumIEEE(body) != header.Checksum {
		return nil, fmt.Errorf("snapshot checksum mismatch: %w", apperrors.ErrSnapshotInvalid)
	}
	return body, nil
}

// Prune removes the snapshot files of every key under prefix except keep.
func (s *FileStore) Prune(ctx context.Context, prefix, keep string) (int64, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return 0, fmt.Errorf("listing snapshot directory: %w", err)
	}
	var n int64
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), fileExt)
		if !ok || entry.IsDir() {
			continue
		}
		raw, err := hex.DecodeString(name)
		if err != nil {
			continue
		}
		key := string(raw)
		if key == keep || !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := os.Remove(filepath.Join(s.dataDir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, fmt.Errorf("removing snapshot %q: %w", key, err)
		}
		n++
	}
	return n, nil
}

func (s *FileStore) Close() error { return nil }

// Ping checks that the directory is still there.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dataDir)
	if err != nil {
		return fmt.Errorf("stat snapshot directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dataDir)
	}
	return nil
}
