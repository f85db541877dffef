package sdfat32

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/go-sdfat/sdfat32/internal/mbr"
)

// PartitionInfo mirrors one 16-byte MBR partition table entry, per §3/§6.
type PartitionInfo struct {
	Boot         bool
	Type         mbr.PartitionType
	StartSector  uint32
	TotalSectors uint32
}

// ReadPartitionTable reads the MBR at LBA 0 and returns its four partition
// entries, per §6 ("Mbr::read_part_info(bdev) -> [PartitionInfo;4]").
func ReadPartitionTable(bd BlockDevice) ([4]PartitionInfo, error) {
	var out [4]PartitionInfo
	var sector [512]byte
	if err := bd.ReadBlocks(sector[:], 0); err != nil {
		return out, ErrCorruptMBR
	}
	bs, err := mbr.ToBootSector(sector[:])
	if err != nil {
		return out, ErrCorruptMBR
	}
	if bs.BootSignature() != mbr.BootSignature {
		return out, ErrCorruptMBR
	}
	for i := 0; i < 4; i++ {
		pte := bs.PartitionTable(i)
		out[i] = PartitionInfo{
			Boot:         pte.Attributes().IsBootable(),
			Type:         pte.PartitionType(),
			StartSector:  pte.StartLBA(),
			TotalSectors: pte.NumberOfLBA(),
		}
	}
	return out, nil
}

const (
	bytesPerSectorRequired = 512
	fatCountRequired       = 2
	minDataClusterCount    = 65525 // FAT32 minimum, per §3.
)

// Partition is the derived FAT32 geometry for one volume, computed once at
// mount per §4.4.
type Partition struct {
	partitionStart uint32

	sectorsPerCluster     uint8
	log2SectorsPerCluster uint8
	clusterSectorMask     uint8

	reservedSectors uint16
	fatCount        uint8
	sectorsPerFAT   uint32

	fatStartSector   uint32
	dataStartSector  uint32
	dataClusterCount uint32

	totalSectors32 uint32
	volumeLabel    [11]byte

	allocSearchStart uint32 // reserved for future writes, per §3.
}

// ReadPartition reads the boot sector at pi.StartSector, validates the BPB,
// and derives the geometry described in §3/§4.4.
func ReadPartition(ctx context.Context, bd BlockDevice, pi PartitionInfo) (*Partition, FSError) {
	var sector [512]byte
	if err := bd.ReadBlocks(sector[:], int64(pi.StartSector)); err != nil {
		return nil, ErrBlockDeviceFailed
	}
	bpb := biosParamBlock{data: sector[:]}

	if bpb.BootSignature() != bootSignatureExpected {
		return nil, ErrCorruptPartition
	}

	var merr *multierror.Error
	if bpb.NumFATs() != fatCountRequired {
		merr = multierror.Append(merr, fmt.Errorf("fat_count = %d, want %d", bpb.NumFATs(), fatCountRequired))
	}
	if bpb.BytesPerSector() != bytesPerSectorRequired {
		merr = multierror.Append(merr, fmt.Errorf("bytes_per_sector = %d, want %d", bpb.BytesPerSector(), bytesPerSectorRequired))
	}

	log2spc, ok := log2PowerOfTwo(bpb.SectorsPerCluster())
	if !ok {
		merr = multierror.Append(merr, fmt.Errorf("sectors_per_cluster = %d is not a power of two", bpb.SectorsPerCluster()))
	}
	if err := merr.ErrorOrNil(); err != nil {
		slog.Default().Warn("boot sector failed BPB validation", "partition_start", pi.StartSector, "detail", err)
		return nil, ErrCorruptPartition
	}

	p := &Partition{
		partitionStart:        pi.StartSector,
		sectorsPerCluster:     bpb.SectorsPerCluster(),
		log2SectorsPerCluster: log2spc,
		clusterSectorMask:     bpb.SectorsPerCluster() - 1,
		reservedSectors:       bpb.ReservedSectors(),
		fatCount:              bpb.NumFATs(),
		sectorsPerFAT:         bpb.SectorsPerFAT32(),
		totalSectors32:        bpb.TotalSectors32(),
		volumeLabel:           bpb.VolumeLabel(),
		allocSearchStart:      1,
	}
	p.fatStartSector = p.partitionStart + uint32(p.reservedSectors)
	p.dataStartSector = p.fatStartSector + uint32(p.fatCount)*p.sectorsPerFAT
	p.dataClusterCount = (p.totalSectors32 - (p.dataStartSector - p.partitionStart)) >> p.log2SectorsPerCluster

	if p.dataClusterCount < minDataClusterCount {
		return nil, ErrUnsupportedVersion
	}
	return p, frOK
}

// log2PowerOfTwo returns log2(n) and true if n is a power of two in
// [1,128], per §4.4's "detected by doubling a trial until it matches".
func log2PowerOfTwo(n uint8) (uint8, bool) {
	if n == 0 {
		return 0, false
	}
	var trial uint8 = 1
	var shift uint8
	for trial != n {
		if trial&0x80 != 0 {
			return 0, false // would overflow before matching n.
		}
		trial <<= 1
		shift++
	}
	return shift, true
}

func (p *Partition) rootCluster() uint32 { return 2 }

func (p *Partition) lastCluster() uint32 { return p.dataClusterCount + 1 }

// clusterStartSector implements §4.4's cluster_start_sector helper.
func (p *Partition) clusterStartSector(c uint32) uint32 {
	return p.dataStartSector + ((c - 2) << p.log2SectorsPerCluster)
}

// sectorOfCluster implements §4.4's sector_of_cluster helper.
func (p *Partition) sectorOfCluster(pos int64) uint32 {
	const log2BytesPerSector = 9
	return uint32(pos>>log2BytesPerSector) & uint32(p.clusterSectorMask)
}

func (p *Partition) log2BytesPerCluster() uint8 { return p.log2SectorsPerCluster + 9 }

const clusterEOCThreshold = 0x0FFFFFF8
const mask28Bits = 0x0FFFFFFF

// isEndOfChain reports whether a raw FAT entry value denotes end-of-chain,
// per §9 "Cluster EOC check": the FAT walk itself does not surface EOC, but
// this helper centralizes the `>= 0x0FFFFFF8` test at its two call sites
// (seek past EOF and read at EOF) instead of leaving it as a TODO.
func isEndOfChain(v uint32) bool { return v >= clusterEOCThreshold }

// FATGetNextCluster implements fat_get_next_cluster, per §4.4: rejects
// cluster < 2 or > last_cluster() with InvalidCluster, otherwise returns the
// raw 28-bit successor/EOC-marker value from the FAT.
func (p *Partition) FATGetNextCluster(ctx context.Context, pool *BufferPool, cluster uint32) (uint32, FSError) {
	if cluster < 2 || cluster > p.lastCluster() {
		return 0, ErrInvalidCluster
	}
	fatSector := p.fatStartSector + (cluster >> 7)
	guard, err := pool.Borrow(ctx, FSBuffer, int64(fatSector))
	if !err.isOK() {
		return 0, blockToFS(err)
	}
	defer guard.Release()
	guard.MarkRead(int64(fatSector))

	off := (cluster & 0x7F) * 4
	b := guard.Bytes()
	raw := uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
	return raw & mask28Bits, frOK
}

func (p *Partition) String() string {
	return fmt.Sprintf("Partition{label=%q clusters=%d (%s) spc=%d}",
		p.volumeLabel, p.dataClusterCount,
		humanize.Bytes(uint64(p.dataClusterCount)*uint64(p.sectorsPerCluster)*512), p.sectorsPerCluster)
}
