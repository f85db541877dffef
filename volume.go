package sdfat32

import (
	"context"
	"fmt"
	"log/slog"
)

const maxSubdirDepth = 8

// Volume is an opened FAT32 partition: its geometry, the two shared sector
// buffers, and a small identity tag used to reject File handles that
// outlive their volume, per §3/§6.
type Volume struct {
	part *Partition
	pool *BufferPool
	bd   BlockDevice
	id   uint32
	log  *slog.Logger
}

// OpenVolume validates the boot sector at pi.StartSector and derives its
// FAT32 geometry, per §4.4/§6.
func OpenVolume(bd BlockDevice, partIdx int, pi *PartitionInfo, logger *slog.Logger) (*Volume, error) {
	if partIdx < 0 || partIdx > 3 {
		return nil, ErrBadPartitionNumber
	}
	if logger == nil {
		logger = slog.Default()
	}
	part, err := ReadPartition(context.Background(), bd, *pi)
	if !err.isOK() {
		return nil, err
	}
	v := &Volume{
		part: part,
		pool: NewBufferPool(bd),
		bd:   bd,
		id:   pi.StartSector ^ uint32(partIdx)<<28,
		log:  logger,
	}
	v.log.Debug("volume opened", "partition", partIdx, "geometry", part.String())
	return v, nil
}

// OpenRoot opens the volume's root directory, per §8 invariant 3 (`size==0`,
// `start_cluster==2`).
func (v *Volume) OpenRoot(flags Mode) (File, error) {
	if flags&modeWriteBits != 0 {
		return File{}, ErrForbiddenMode
	}
	root := v.part.rootCluster()
	f := File{
		cluster:      root,
		startCluster: root,
		volumeID:     v.id,
		attr:         fileAttrRoot,
		flags:        FlagRead,
	}
	return f, nil
}

// OpenByName implements open_by_name, per §4.9.
func (v *Volume) OpenByName(bd BlockDevice, path string, flags Mode) (File, error) {
	if flags&modeWriteBits != 0 {
		return File{}, ErrForbiddenMode
	}
	root, _ := v.OpenRoot(ModeRDONLY)
	f, err := openByName(context.Background(), v.part, v.pool, v.id, &root, path, flags)
	if !err.isOK() {
		return File{}, err
	}
	return f, nil
}

// Ls implements ls, per §4.10: iterates dir from position 0, invoking fn
// for every non-deleted entry (both the Long fragments and their Short
// anchor, per §4.5's Long|Short tagged union — skipping hidden ones unless
// showHidden), and recursing into subdirectories up to depthLimit. A
// depthLimit greater than maxSubdirDepth is clamped, and only a recursion
// that bottoms out against that hard clamp is ErrTooManySubdirs; an
// explicit caller-supplied limit at or below maxSubdirDepth truncates the
// walk cleanly instead.
func (v *Volume) Ls(bd BlockDevice, dir *File, showHidden bool, depthLimit int, fn func(*DirEntry, int) error) error {
	hardCap := depthLimit > maxSubdirDepth
	if hardCap {
		depthLimit = maxSubdirDepth
	}
	return v.ls(context.Background(), dir, showHidden, 0, depthLimit, hardCap, fn)
}

func (v *Volume) ls(ctx context.Context, dir *File, showHidden bool, depth, depthLimit int, hardCap bool, fn func(*DirEntry, int) error) error {
	if err := Seek(ctx, v.part, v.pool, dir, 0); !err.isOK() {
		return err
	}
	var st dirIterState
	for {
		e, ok, err := dirNext(ctx, v.part, v.pool, dir, &st)
		if !err.isOK() {
			return err
		}
		if !ok {
			return nil
		}
		if e.IsDeleted {
			continue
		}
		if isSelfOrParentName(e.SFN) {
			continue
		}
		if !showHidden && e.Attr&attrHidden != 0 {
			continue
		}
		if fnErr := fn(&e, depth); fnErr != nil {
			return fnErr
		}
		if e.IsLong {
			// A Long fragment has no cluster of its own to recurse into;
			// its Short anchor follows and carries that.
			continue
		}
		if e.Attr&attrDirectory != 0 {
			if depthLimit <= 0 {
				if hardCap {
					return ErrTooManySubdirs
				}
				continue
			}
			sub := File{
				cluster:      e.Cluster,
				startCluster: e.Cluster,
				volumeID:     v.id,
				attr:         fileAttrSubdir,
				flags:        FlagRead,
			}
			if err := v.ls(ctx, &sub, showHidden, depth+1, depthLimit-1, hardCap, fn); err != nil {
				return err
			}
		}
	}
}

// Seek repositions f within the volume, per §4.7.
func (v *Volume) Seek(bd BlockDevice, f *File, pos int64) error {
	if f.volumeID != v.id {
		return ErrVolumeIDMismatch
	}
	if err := Seek(context.Background(), v.part, v.pool, f, pos); !err.isOK() {
		return err
	}
	return nil
}

// Read copies file bytes into buf starting at f.pos, per §4.8.
func (v *Volume) Read(bd BlockDevice, f *File, buf []byte) (int, error) {
	n, err := Read(context.Background(), v.part, v.pool, f, v.id, buf)
	if !err.isOK() {
		return n, err
	}
	return n, nil
}

// Close releases a File handle, per §3's is_open()/attributes==0 closed
// state.
func (v *Volume) Close(f *File) {
	f.attr = fileAttrClosed
	f.flags = 0
}

func (v *Volume) String() string {
	return fmt.Sprintf("Volume{id=%#x %s}", v.id, v.part)
}
