package sdfat32

import (
	"context"
	"encoding/binary"
	"testing"
)

// buildBPB writes a minimal valid FAT32 boot sector into sector, per the
// field offsets in direntry.go.
func buildBPB(sector []byte, bytesPerSector uint16, sectorsPerCluster uint8, reserved uint16, fatCount uint8, sectorsPerFAT32, totalSectors32 uint32) {
	binary.LittleEndian.PutUint16(sector[offBytesPerSector:], bytesPerSector)
	sector[offSectorsPerCluster] = sectorsPerCluster
	binary.LittleEndian.PutUint16(sector[offReservedSectors:], reserved)
	sector[offNumFATs] = fatCount
	binary.LittleEndian.PutUint32(sector[offTotalSectors32:], totalSectors32)
	binary.LittleEndian.PutUint32(sector[offSectorsPerFAT32:], sectorsPerFAT32)
	binary.LittleEndian.PutUint16(sector[offBootSignature:], bootSignatureExpected)
}

// TestReadPartitionS3 reproduces scenario S3 from SPEC_FULL.md §8.
func TestReadPartitionS3(t *testing.T) {
	const partitionStart = 2048
	bd := newMemBlockDevice(partitionStart + 1)
	buildBPB(bd.sector(partitionStart), 512, 8, 32, 2, 1009, 524288)

	pi := PartitionInfo{StartSector: partitionStart}
	_, err := ReadPartition(context.Background(), bd, pi)
	if err != ErrUnsupportedVersion {
		t.Fatalf("err = %v, want ErrUnsupportedVersion", err)
	}

	buildBPB(bd.sector(partitionStart), 512, 8, 32, 2, 1009, 1048576)
	part, err := ReadPartition(context.Background(), bd, pi)
	if !err.isOK() {
		t.Fatalf("ReadPartition: %v", err)
	}
	if part.fatStartSector != 2080 {
		t.Fatalf("fatStartSector = %d, want 2080", part.fatStartSector)
	}
	if part.dataStartSector != 4098 {
		t.Fatalf("dataStartSector = %d, want 4098", part.dataStartSector)
	}
	// (1048576 - (4098-2048)) >> 3 = 1046526 >> 3 = 130815.
	if part.dataClusterCount != 130815 {
		t.Fatalf("dataClusterCount = %d, want 130815", part.dataClusterCount)
	}
}

// TestFATGetNextClusterS4 reproduces scenario S4 from SPEC_FULL.md §8.
func TestFATGetNextClusterS4(t *testing.T) {
	const partitionStart = 2048
	bd := newMemBlockDevice(partitionStart + 4200)
	buildBPB(bd.sector(partitionStart), 512, 8, 32, 2, 1009, 1048576)

	part, err := ReadPartition(context.Background(), bd, PartitionInfo{StartSector: partitionStart})
	if !err.isOK() {
		t.Fatalf("ReadPartition: %v", err)
	}
	if part.fatStartSector != 2080 {
		t.Fatalf("fatStartSector = %d, want 2080", part.fatStartSector)
	}

	fatSector := bd.sector(2080)
	fatSector[8] = 0x05
	fatSector[9] = 0x00
	fatSector[10] = 0x00
	fatSector[11] = 0x00

	pool := NewBufferPool(bd)
	next, fserr := part.FATGetNextCluster(context.Background(), pool, 2)
	if !fserr.isOK() {
		t.Fatalf("FATGetNextCluster: %v", fserr)
	}
	if next != 5 {
		t.Fatalf("next = %d, want 5", next)
	}

	fatSector[8], fatSector[9], fatSector[10], fatSector[11] = 0xFF, 0xFF, 0xFF, 0x0F
	next, fserr = part.FATGetNextCluster(context.Background(), pool, 2)
	if !fserr.isOK() {
		t.Fatalf("FATGetNextCluster: %v", fserr)
	}
	if !isEndOfChain(next) {
		t.Fatalf("next = %#x, want end-of-chain", next)
	}
}

func TestLog2PowerOfTwo(t *testing.T) {
	cases := []struct {
		n    uint8
		want uint8
		ok   bool
	}{
		{1, 0, true},
		{2, 1, true},
		{8, 3, true},
		{128, 7, true},
		{0, 0, false},
		{3, 0, false},
		{255, 0, false},
	}
	for _, c := range cases {
		got, ok := log2PowerOfTwo(c.n)
		if ok != c.ok {
			t.Fatalf("log2PowerOfTwo(%d) ok = %v, want %v", c.n, ok, c.ok)
		}
		if ok && got != c.want {
			t.Fatalf("log2PowerOfTwo(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}
