package sdfat32

import (
	"context"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var upperCaser = cases.Upper(language.Und)

const maxLFNLen = 255

// ParsedName is the transient result of parsing one path component, per
// §3/§4.9: the original component bytes, a generated 8.3 SFN, and whether
// that SFN's base was truncated. No case flags are recorded.
type ParsedName struct {
	path      string
	truncated bool
	sfn       [11]byte
}

// reservedPathChars are the bytes parse_path_name rejects outright, beyond
// the 0x20..=0x7F range, per §4.9.
var reservedPathChars = map[byte]bool{
	'"': true, '*': true, '/': true, ':': true,
	'<': true, '>': true, '?': true, '\\': true, '|': true,
}

// reservedSFNChars are replaced with '_' when deriving the 11-byte SFN,
// per §4.9. It covers every byte of reservedPathChars except '"', which
// parsePathName has already rejected before an SFN is derived.
var reservedSFNChars = map[byte]bool{
	'[': true, ']': true, '\\': true, '|': true, '*': true, '+': true,
	',': true, '.': true, '/': true, ':': true, ';': true, '<': true,
	'=': true, '>': true, '?': true,
}

// parsePathName consumes one path component starting at s[start:], per
// §4.9. It returns the parsed component, the index of the next separator
// (or len(s) if none), and an error.
func parsePathName(s string, start int) (ParsedName, int, FSError) {
	end := start
	for end < len(s) && s[end] != '/' {
		end = end + 1
	}
	raw := s[start:end]

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c < 0x20 || c > 0x7F || reservedPathChars[c] {
			return ParsedName{}, end, ErrParsePath
		}
	}

	trimEnd := len(raw)
	for trimEnd > 0 && (raw[trimEnd-1] == '.' || raw[trimEnd-1] == ' ') {
		trimEnd--
	}
	raw = raw[:trimEnd]

	if len(raw) == 0 || len(raw) > maxLFNLen {
		return ParsedName{}, end, ErrParsePath
	}

	sfn, truncated := deriveSFN(raw)
	return ParsedName{path: raw, truncated: truncated, sfn: sfn}, end, frOK
}

// deriveSFN builds the 11-byte, space-padded, upper-cased 8.3 short name
// for name, per §4.9: skip leading dots to find the real basename, split
// on the last remaining dot, replace reserved SFN characters with '_',
// truncate the base to 6 characters plus a "~1" suffix when it would
// otherwise not fit in 8, and the extension to 3.
func deriveSFN(name string) (sfn [11]byte, truncated bool) {
	for i := range sfn {
		sfn[i] = ' '
	}

	upper := upperCaser.String(name)

	baseStart := 0
	for baseStart < len(upper) && upper[baseStart] == '.' {
		baseStart++
	}
	rest := upper[baseStart:]

	dot := -1
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == '.' {
			dot = i
			break
		}
	}
	base, ext := rest, ""
	if dot >= 0 {
		base, ext = rest[:dot], rest[dot+1:]
	}

	cleanBase := replaceReserved(base)
	cleanExt := replaceReserved(ext)

	if len(cleanBase) > 8 {
		truncated = true
		n := copy(sfn[:6], cleanBase[:6])
		sfn[n] = '~'
		sfn[n+1] = '1'
	} else {
		copy(sfn[:8], cleanBase)
	}
	if len(cleanExt) > 3 {
		cleanExt = cleanExt[:3]
	}
	copy(sfn[8:11], cleanExt)
	return sfn, truncated
}

func replaceReserved(s string) string {
	b := []byte(s)
	for i, c := range b {
		if reservedSFNChars[c] {
			b[i] = '_'
		}
	}
	return string(b)
}

// openByName implements open_by_name, per §4.9: resolves path one
// component at a time from root, opening intermediate components
// read-only and the final component with flags.
func openByName(ctx context.Context, part *Partition, pool *BufferPool, volumeID uint32, root *File, path string, flags Mode) (File, FSError) {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	if i >= len(path) {
		rootCopy := *root
		return rootCopy, frOK
	}

	cur := *root
	for i < len(path) {
		name, next, err := parsePathName(path, i)
		if !err.isOK() {
			return File{}, err
		}
		openFlags := ModeRDONLY
		skipToNext := next
		for skipToNext < len(path) && path[skipToNext] == '/' {
			skipToNext++
		}
		isFinal := skipToNext >= len(path)
		if isFinal {
			openFlags = flags
		}

		next2, err := openFileFromLFN(ctx, part, pool, volumeID, &cur, name, openFlags)
		if !err.isOK() {
			return File{}, err
		}
		cur = next2
		i = skipToNext
	}
	return cur, frOK
}

// openFileFromLFN implements open_file_from_lfn, per §4.9: seeks dir to 0
// and walks its directory iterator looking for either a checksum-valid LFN
// run whose upper-cased name matches, or (absent an LFN run, and the
// parsed name untruncated) a plain SFN match.
func openFileFromLFN(ctx context.Context, part *Partition, pool *BufferPool, volumeID uint32, dir *File, name ParsedName, flags Mode) (File, FSError) {
	if err := Seek(ctx, part, pool, dir, 0); !err.isOK() {
		return File{}, err
	}

	wantUpper := upperCaser.String(name.path)
	var st dirIterState
	var accumulated []uint16
	var haveLFNRun bool

	for {
		e, ok, err := dirNext(ctx, part, pool, dir, &st)
		if !err.isOK() {
			return File{}, err
		}
		if !ok {
			break
		}
		if e.IsDeleted {
			accumulated = accumulated[:0]
			haveLFNRun = false
			continue
		}
		if e.IsLong {
			accumulated = append(accumulated, e.NameUnits[:]...)
			haveLFNRun = true
			continue
		}

		if isSelfOrParentName(e.SFN) {
			accumulated = accumulated[:0]
			haveLFNRun = false
			continue
		}

		if haveLFNRun {
			got := upperCaser.String(joinUTF16Units(accumulated))
			if got == wantUpper {
				opened, err := openDirEntry(part, volumeID, e)
				if !err.isOK() {
					return File{}, err
				}
				return opened, frOK
			}
		} else if !name.truncated {
			if e.SFN == name.sfn {
				opened, err := openDirEntry(part, volumeID, e)
				if !err.isOK() {
					return File{}, err
				}
				return opened, frOK
			}
		}

		accumulated = accumulated[:0]
		haveLFNRun = false
	}
	return File{}, ErrFileNotFound
}

// isSelfOrParentName reports whether a decoded 11-byte SFN is "." or "..",
// per §4.5/§4.10 (the free-function form of dirEntrySFN.isSelfOrParent, for
// callers holding only the decoded name rather than the backing sector).
func isSelfOrParentName(n [11]byte) bool {
	if n[0] == '.' && n[1] == ' ' {
		return true
	}
	if n[0] == '.' && n[1] == '.' && n[2] == ' ' {
		return true
	}
	return false
}

// joinUTF16Units decodes a run of LFN fragments' UTF-16 code units
// (13-per-fragment, 0x0000/0xFFFF padded) into a UTF-8 string for
// upper-cased comparison against a parsed path component.
func joinUTF16Units(units []uint16) string {
	var out string
	for i := 0; i < len(units); i += 13 {
		end := i + 13
		if end > len(units) {
			end = len(units)
		}
		var frag [13]uint16
		copy(frag[:], units[i:end])
		out += nameUnitsToUTF8(frag)
	}
	return out
}

// openDirEntry builds a File handle from a matched directory entry, per
// §3's File fields.
func openDirEntry(part *Partition, volumeID uint32, e DirEntry) (File, FSError) {
	attr := uint8(fileAttrFile)
	if e.Attr&attrDirectory != 0 {
		attr = fileAttrSubdir
	}
	f := File{
		cluster:      e.Cluster,
		startCluster: e.Cluster,
		volumeID:     volumeID,
		attr:         attr,
		flags:        FlagRead,
		size:         e.Size,
	}
	return f, frOK
}
