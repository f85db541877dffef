package sdfat32

import (
	"errors"
	"fmt"
)

// memBlockDevice is an in-memory BlockDevice fixture grounded on the
// teacher's vfs_test.go BlockByteSlice, adapted to this package's
// single-error ReadBlocks signature and instrumented with a read counter so
// tests can assert on buffer-pool cache hits (invariant 1, §8).
type memBlockDevice struct {
	buf   []byte
	reads int
}

func newMemBlockDevice(sizeSectors int) *memBlockDevice {
	return &memBlockDevice{buf: make([]byte, sizeSectors*512)}
}

func (m *memBlockDevice) ReadBlocks(dst []byte, startBlock int64) error {
	m.reads++
	if startBlock < 0 {
		return errors.New("invalid startBlock")
	}
	off := startBlock * 512
	end := off + int64(len(dst))
	if end > int64(len(m.buf)) {
		return fmt.Errorf("read past end of buffer: %d > %d", end, len(m.buf))
	}
	copy(dst, m.buf[off:end])
	return nil
}

func (m *memBlockDevice) sector(i int64) []byte {
	return m.buf[i*512 : (i+1)*512]
}
