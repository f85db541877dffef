package sdfat32

import (
	"context"
	"encoding/binary"

	"github.com/go-sdfat/sdfat32/internal/utf16x"
)

// maxLFNFragments bounds the number of LFN fragments a single run may carry
// (255 UTF-16 units / 13 units per fragment, rounded up), per §4.5.
const maxLFNFragments = 20

// DirEntry is one yielded record from the directory iterator, per §4.5: a
// tagged union of a long-name fragment or a short-name anchor.
type DirEntry struct {
	IsLong    bool
	SFN       [11]byte // valid when !IsLong; zero for Long entries
	Attr      uint8    // sfn_attr_hint when IsLong; the entry's own attributes otherwise
	Cluster   uint32
	Size      uint32
	HadLFN    bool // valid when !IsLong: whether an LFN run preceded this anchor
	NameUnits [13]uint16
	IsDeleted bool
}

// IsDir reports whether a Short entry's attributes mark it a directory.
func (e DirEntry) IsDir() bool { return e.Attr&attrDirectory != 0 }

// LongNameChars decodes a Long entry's 13 packed UTF-16 code units to
// UTF-8, for callers outside the package (e.g. cmd/sdfatls) that want to
// reassemble a long filename from the fragments Ls forwards to fn, the way
// the original's sdls.rs print_entry streams DirEntry::Long characters.
func (e DirEntry) LongNameChars() string { return nameUnitsToUTF8(e.NameUnits) }

// dirIterState is the per-walk LFN stitching state described in §4.5.
//
// LFN fragments are stored on disk in descending sequence order (the
// logically-last fragment physically first, immediately followed by the
// SFN anchor it belongs to), so a single forward pass cannot yield them in
// ascending order as it reads them. Instead the iterator buffers each
// fragment's 13 name units into units[seq-1] while scanning forward, and
// once the anchor is reached (and validated) it drains the buffer in
// ascending order, one Long entry per subsequent dirNext call, before
// finally yielding the Short anchor itself. This keeps the walk strictly
// forward-only (no backtracking through loadSectorForFile/Seek) while
// still presenting fragments to callers in the order they reassemble into
// the logical name.
type dirIterState struct {
	inRun       bool
	lfnChecksum byte
	total       int // fragment count declared by the first (last-flagged) fragment
	expectedSeq int // next raw sequence number expected while scanning forward, counts down to 0
	units       [maxLFNFragments][13]uint16

	emitting    bool
	emitIdx     int
	sfnAttrHint uint8
	finalEntry  DirEntry
}

// dirNext advances dir by one directory record, applying the LFN stitching
// algorithm of §4.5. It returns ok=false once the end of the directory
// (name[0]==0x00) is reached.
func dirNext(ctx context.Context, part *Partition, pool *BufferPool, dir *File, st *dirIterState) (entry DirEntry, ok bool, fserr FSError) {
	for {
		if st.emitting {
			if st.emitIdx < st.total {
				idx := st.emitIdx
				st.emitIdx++
				return DirEntry{
					IsLong:    true,
					Attr:      st.sfnAttrHint,
					NameUnits: st.units[idx],
				}, true, frOK
			}
			final := st.finalEntry
			*st = dirIterState{}
			return final, true, frOK
		}

		guard, sectorPos, err := loadSectorForFile(ctx, part, pool, dir, true)
		if !err.isOK() {
			return entry, false, err
		}
		recordIndex := (sectorPos & 0x1FF) >> 5
		rec := guard.Bytes()[recordIndex*sizeDirEntry : recordIndex*sizeDirEntry+sizeDirEntry]
		sfn := dirEntrySFN{data: rec}

		if sfn.IsFree() {
			guard.Release()
			return entry, false, frOK
		}

		if sfn.IsDeleted() {
			guard.Release()
			dir.pos += sizeDirEntry
			*st = dirIterState{} // a deletion mid-run invalidates any in-progress LFN state
			return DirEntry{IsDeleted: true}, true, frOK
		}

		if sfn.IsLFNFragment() {
			lfn := dirEntryLFN{data: rec}
			fserr := accumulateLFNFragment(st, lfn)
			guard.Release()
			if !fserr.isOK() {
				*st = dirIterState{}
				return entry, false, fserr
			}
			dir.pos += sizeDirEntry
			continue
		}

		// Plain SFN anchor, possibly preceded by a completed LFN run.
		name := sfn.Name()
		attr := sfn.Attr()
		hadLFN := st.inRun
		if hadLFN && (st.expectedSeq != 0 || sfnChecksum(name) != st.lfnChecksum) {
			guard.Release()
			*st = dirIterState{}
			return entry, false, ErrLfnParse
		}
		e := DirEntry{
			SFN:     name,
			Attr:    attr,
			Cluster: sfn.Cluster(),
			Size:    sfn.FileSize(),
			HadLFN:  hadLFN,
		}
		guard.Release()
		dir.pos += sizeDirEntry

		if !hadLFN {
			*st = dirIterState{}
			return e, true, frOK
		}

		// Hand the buffered fragments back out in ascending order before
		// the anchor itself.
		total := st.total
		sfnAttrHint := attr
		*st = dirIterState{}
		if total == 0 {
			return e, true, frOK
		}
		st.emitting = true
		st.emitIdx = 0
		st.total = total
		st.sfnAttrHint = sfnAttrHint
		st.finalEntry = e
		continue
	}
}

// accumulateLFNFragment folds one LFN fragment into the run buffer. The
// first fragment encountered must carry the 0x40 last-in-run marker; its
// sequence number fixes the run's total length and every subsequent
// fragment must continue the checksum and count strictly down to 1.
func accumulateLFNFragment(st *dirIterState, lfn dirEntryLFN) FSError {
	if !st.inRun {
		if !lfn.IsLast() {
			return ErrLfnParse
		}
		seqNum := lfn.SequenceNumber()
		if seqNum < 1 || seqNum > maxLFNFragments {
			return ErrLfnParse
		}
		st.inRun = true
		st.lfnChecksum = lfn.Checksum()
		st.total = seqNum
		st.expectedSeq = seqNum
	}

	if lfn.Checksum() != st.lfnChecksum || lfn.SequenceNumber() != st.expectedSeq {
		return ErrLfnParse
	}

	var raw [26]byte
	lfn.ReadNameUnits(&raw)
	idx := st.expectedSeq - 1
	for i := 0; i < 13; i++ {
		st.units[idx][i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	st.expectedSeq--
	return frOK
}

// nameUnitsToUTF8 decodes a fragment's 13 UTF-16 code units (terminated
// early by 0x0000 or 0xFFFF padding) to a UTF-8 string, using the package's
// adapted UTF-16 decoder (internal/utf16x), per §3/§9.
func nameUnitsToUTF8(units [13]uint16) string {
	var raw [26]byte
	n := 0
	for _, u := range units {
		if u == 0x0000 || u == 0xFFFF {
			break
		}
		raw[n] = byte(u)
		raw[n+1] = byte(u >> 8)
		n += 2
	}
	dst := make([]byte, n*3) // worst case 3 bytes per UTF-8 rune from a BMP code unit.
	m, err := utf16x.ToUTF8(dst, raw[:n], binary.LittleEndian)
	if err != nil {
		return ""
	}
	return string(dst[:m])
}
