package sdfat32

import (
	"context"
	"testing"
)

// newTestPartition builds a minimal Partition geometry directly (bypassing
// ReadPartition/BPB parsing) for focused file-state-machine tests: 1
// sector per cluster, FAT starting at sector 10, data starting at sector 20.
func newTestPartition() *Partition {
	return &Partition{
		partitionStart:        0,
		sectorsPerCluster:     1,
		log2SectorsPerCluster: 0,
		clusterSectorMask:     0,
		reservedSectors:       10,
		fatCount:              1,
		sectorsPerFAT:         10,
		fatStartSector:        10,
		dataStartSector:       20,
		dataClusterCount:      1000,
		totalSectors32:        1100,
	}
}

func putFATEntry(bd *memBlockDevice, part *Partition, cluster, next uint32) {
	fatSector := part.fatStartSector + (cluster >> 7)
	off := (cluster & 0x7F) * 4
	b := bd.sector(int64(fatSector))
	b[off] = byte(next)
	b[off+1] = byte(next >> 8)
	b[off+2] = byte(next >> 16)
	b[off+3] = byte(next >> 24)
}

func TestReadWithinSingleSector(t *testing.T) {
	bd := newMemBlockDevice(30)
	part := newTestPartition()
	copy(bd.sector(20), []byte("hello world"))

	f := &File{cluster: 2, startCluster: 2, flags: FlagRead, attr: fileAttrFile, size: 11}
	pool := NewBufferPool(bd)

	buf := make([]byte, 5)
	n, err := Read(context.Background(), part, pool, f, 0, buf)
	if !err.isOK() {
		t.Fatalf("Read: %v", err)
	}
	if n != 5 || string(buf) != "hello" {
		t.Fatalf("Read = %d %q, want 5 %q", n, buf, "hello")
	}
	if f.pos != 5 {
		t.Fatalf("pos = %d, want 5", f.pos)
	}
}

func TestReadPastEOF_S6(t *testing.T) {
	bd := newMemBlockDevice(30)
	part := newTestPartition()

	f := &File{cluster: 2, startCluster: 2, flags: FlagRead, attr: fileAttrFile, size: 100}
	pool := NewBufferPool(bd)

	buf := make([]byte, 200)
	n, err := Read(context.Background(), part, pool, f, 0, buf)
	if !err.isOK() {
		t.Fatalf("Read: %v", err)
	}
	if n != 100 || f.pos != 100 {
		t.Fatalf("n=%d pos=%d, want 100/100", n, f.pos)
	}

	n, err = Read(context.Background(), part, pool, f, 0, buf)
	if !err.isOK() {
		t.Fatalf("Read: %v", err)
	}
	if n != 0 {
		t.Fatalf("second read n = %d, want 0", n)
	}
}

func TestReadCrossesClusterViaFATChain(t *testing.T) {
	bd := newMemBlockDevice(30)
	part := newTestPartition()
	putFATEntry(bd, part, 2, 5)
	copy(bd.sector(20), []byte("AAAAAAAAAAAAAAAAAAAA")) // cluster 2 -> sector 20
	copy(bd.sector(23), []byte("BBBBBBBBBBBBBBBBBBBB")) // cluster 5 -> sector 23

	f := &File{cluster: 2, startCluster: 2, flags: FlagRead, attr: fileAttrFile, size: 1024}
	pool := NewBufferPool(bd)

	buf := make([]byte, 512+20)
	n, err := Read(context.Background(), part, pool, f, 0, buf)
	if !err.isOK() {
		t.Fatalf("Read: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("n = %d, want %d", n, len(buf))
	}
	if string(buf[:20]) != "AAAAAAAAAAAAAAAAAAAA" {
		t.Fatalf("first cluster bytes = %q", buf[:20])
	}
	if string(buf[512:532]) != "BBBBBBBBBBBBBBBBBBBB" {
		t.Fatalf("second cluster bytes = %q", buf[512:532])
	}
	if f.cluster != 5 {
		t.Fatalf("f.cluster = %d, want 5 after crossing", f.cluster)
	}
}

func TestSeekContiguousFastPath(t *testing.T) {
	bd := newMemBlockDevice(30)
	part := newTestPartition()

	f := &File{cluster: 2, startCluster: 2, flags: FlagRead | flagContiguous, attr: fileAttrFile, size: 10000}
	pool := NewBufferPool(bd)

	if err := Seek(context.Background(), part, pool, f, 3*512); !err.isOK() {
		t.Fatalf("Seek: %v", err)
	}
	// new_idx = (pos-1)>>log2bpc = 1535>>9 = 2; cluster = start_cluster+2.
	if f.cluster != 4 {
		t.Fatalf("cluster = %d, want 4 (2+2)", f.cluster)
	}
	if f.pos != 3*512 {
		t.Fatalf("pos = %d", f.pos)
	}
}

func TestSeekPastSizeRejected(t *testing.T) {
	bd := newMemBlockDevice(30)
	part := newTestPartition()
	f := &File{cluster: 2, startCluster: 2, flags: FlagRead, attr: fileAttrFile, size: 100}
	pool := NewBufferPool(bd)

	origCluster := f.cluster
	if err := Seek(context.Background(), part, pool, f, 200); err != ErrSeek {
		t.Fatalf("err = %v, want ErrSeek", err)
	}
	if f.cluster != origCluster {
		t.Fatalf("cluster mutated on failed seek: %d, want %d", f.cluster, origCluster)
	}
}

func TestSeekOnClosedFile(t *testing.T) {
	part := newTestPartition()
	bd := newMemBlockDevice(30)
	pool := NewBufferPool(bd)
	f := &File{} // attr == fileAttrClosed (zero value)
	if err := Seek(context.Background(), part, pool, f, 0); err != ErrFileClosed {
		t.Fatalf("err = %v, want ErrFileClosed", err)
	}
}

func TestReadVolumeIDMismatch(t *testing.T) {
	part := newTestPartition()
	bd := newMemBlockDevice(30)
	pool := NewBufferPool(bd)
	f := &File{cluster: 2, startCluster: 2, flags: FlagRead, attr: fileAttrFile, size: 10, volumeID: 7}
	buf := make([]byte, 4)
	if _, err := Read(context.Background(), part, pool, f, 9, buf); err != ErrVolumeIDMismatch {
		t.Fatalf("err = %v, want ErrVolumeIDMismatch", err)
	}
}
