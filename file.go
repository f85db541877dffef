package sdfat32

import "context"

// Attribute byte values for a File handle, per §3.
const (
	fileAttrClosed = 0x00
	fileAttrFile   = 0x08
	fileAttrSubdir = 0x10
	fileAttrRoot   = 0x40
)

// Flag bits for a File handle, per §3.
const (
	FlagRead       = 0x01
	FlagWrite      = 0x02
	flagContiguous = 0x40
)

// Mode is the caller-facing open mode bitset, per §6's open-flag set. Only
// the read-related bits are honored by this revision (§6).
type Mode uint8

const (
	ModeRDONLY Mode = 0x00
	ModeWRONLY Mode = 0x01
	ModeRDWR   Mode = 0x02
	ModeATEnd  Mode = 0x04
	ModeAppend Mode = 0x08
	ModeCreat  Mode = 0x10
	ModeTrunc  Mode = 0x20
	ModeExcl   Mode = 0x40
	ModeSync   Mode = 0x80

	modeWriteBits = ModeWRONLY | ModeRDWR | ModeAppend | ModeCreat | ModeTrunc | ModeExcl | ModeSync
)

// File is a fully caller-owned file handle, 20 logical bytes per §3:
// current cluster, current byte position, start cluster, volume id,
// attributes, flags, size.
type File struct {
	cluster      uint32
	pos          int64
	startCluster uint32
	volumeID     uint32
	attr         uint8
	flags        uint8
	size         uint32
}

// IsOpen reports whether the handle refers to a live file or directory, per
// §3's invariant is_open() <=> attributes != 0.
func (f *File) IsOpen() bool { return f.attr != fileAttrClosed }

// IsDir reports whether this handle is a directory (subdir or root).
func (f *File) IsDir() bool { return f.attr&(fileAttrSubdir|fileAttrRoot) != 0 }

// IsRoot reports whether this handle is the volume's root directory.
func (f *File) IsRoot() bool { return f.attr&fileAttrRoot != 0 }

// Size returns the file's size in bytes; root directories always report 0,
// per §3.
func (f *File) Size() int64 { return int64(f.size) }

// Pos returns the current byte offset.
func (f *File) Pos() int64 { return f.pos }

func (f *File) isReadable() bool { return f.flags&FlagRead != 0 }

func (f *File) isContiguous() bool { return f.flags&flagContiguous != 0 }

// loadSectorForFile implements §4.6: locates (and, on a cluster-boundary
// crossing, advances) the sector backing f.pos, and borrows the
// appropriate buffer (DATA_BUFFER for files, FS_BUFFER for directories) to
// hold it.
func loadSectorForFile(ctx context.Context, part *Partition, pool *BufferPool, f *File, useFSBuffer bool) (*Guard, int, FSError) {
	sectorPos := int(f.pos & 0x1FF)
	sectorOfCluster := part.sectorOfCluster(f.pos)

	if f.pos != 0 && sectorPos == 0 && sectorOfCluster == 0 {
		// Just crossed into a new cluster.
		if f.isContiguous() {
			f.cluster++
		} else {
			next, err := part.FATGetNextCluster(ctx, pool, f.cluster)
			if !err.isOK() {
				return nil, 0, err
			}
			if isEndOfChain(next) || next < 2 {
				return nil, 0, ErrCorruptFat
			}
			f.cluster = next
		}
	}

	sectorIndex := int64(part.clusterStartSector(f.cluster)) + int64(sectorOfCluster)

	bufIdx := DataBuffer
	if useFSBuffer {
		bufIdx = FSBuffer
	}
	guard, berr := pool.Borrow(ctx, bufIdx, sectorIndex)
	if !berr.isOK() {
		return nil, 0, blockToFS(berr)
	}
	guard.MarkRead(sectorIndex)
	return guard, sectorPos, frOK
}

// Seek implements §4.7.
func Seek(ctx context.Context, part *Partition, pool *BufferPool, f *File, pos int64) FSError {
	if !f.IsOpen() {
		return ErrFileClosed
	}
	if !f.IsDir() && pos > int64(f.size) {
		return ErrSeek
	}
	if pos == f.pos {
		return frOK
	}

	log2bpc := part.log2BytesPerCluster()
	newIdx := (pos - 1) >> log2bpc
	curIdx := (f.pos - 1) >> log2bpc

	origCluster := f.cluster

	if f.isContiguous() {
		f.cluster = f.startCluster + uint32(newIdx)
		f.pos = pos
		return frOK
	}

	var steps int64
	if newIdx < curIdx || f.pos == 0 {
		f.cluster = f.startCluster
		steps = newIdx
	} else {
		steps = newIdx - curIdx
	}

	for i := int64(0); i < steps; i++ {
		next, err := part.FATGetNextCluster(ctx, pool, f.cluster)
		if !err.isOK() {
			f.cluster = origCluster
			return err
		}
		if isEndOfChain(next) || next < 2 {
			f.cluster = origCluster
			return ErrSeek
		}
		f.cluster = next
	}

	f.pos = pos
	return frOK
}

// Read implements §4.8: requires f belongs to the volume and is readable,
// copies up to len(buf) bytes starting at f.pos, and returns the number of
// bytes transferred (zero at EOF).
func Read(ctx context.Context, part *Partition, pool *BufferPool, f *File, volumeID uint32, buf []byte) (int, FSError) {
	if f.volumeID != volumeID {
		return 0, ErrVolumeIDMismatch
	}
	if !f.IsOpen() || !f.isReadable() {
		return 0, ErrFileClosed
	}

	toEOF := int64(f.size) - f.pos
	if toEOF < 0 {
		toEOF = 0
	}
	n := int64(len(buf))
	if n > toEOF {
		n = toEOF
	}

	var transferred int64
	for transferred < n {
		guard, sectorPos, err := loadSectorForFile(ctx, part, pool, f, false)
		if !err.isOK() {
			return int(transferred), err
		}
		remainder := n - transferred
		chunk := int64(512 - sectorPos)
		if chunk > remainder {
			chunk = remainder
		}
		copy(buf[transferred:transferred+chunk], guard.Bytes()[sectorPos:int64(sectorPos)+chunk])
		guard.Release()

		transferred += chunk
		f.pos += chunk
	}
	return int(transferred), frOK
}
