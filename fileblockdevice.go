package sdfat32

import (
	"fmt"
	"os"
)

// FileBlockDevice implements BlockDevice over an *os.File, for tooling
// that mounts a FAT32 volume out of a disk image on the host filesystem
// rather than a live SD card (cmd/sdfatls). It is the exported promotion
// of the same fixed-512-byte-sector addressing the in-memory test fixture
// (fixture_test.go's memBlockDevice) uses, backed by ReadAt instead of a
// []byte slice.
type FileBlockDevice struct {
	f *os.File
}

// OpenFileBlockDevice opens path read-only for use as a BlockDevice.
func OpenFileBlockDevice(path string) (*FileBlockDevice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileBlockDevice{f: f}, nil
}

// Close releases the underlying file handle.
func (d *FileBlockDevice) Close() error { return d.f.Close() }

// ReadBlocks implements BlockDevice.
func (d *FileBlockDevice) ReadBlocks(dst []byte, startBlock int64) error {
	if startBlock < 0 {
		return fmt.Errorf("sdfat32: invalid startBlock %d", startBlock)
	}
	off := startBlock * 512
	n, err := d.f.ReadAt(dst, off)
	if err != nil {
		return fmt.Errorf("sdfat32: read %d bytes at offset %d: %w", len(dst), off, err)
	}
	if n != len(dst) {
		return fmt.Errorf("sdfat32: short read at offset %d: got %d, want %d", off, n, len(dst))
	}
	return nil
}
