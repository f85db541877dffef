package sdfat32

import "fmt"

// BlockError is the flat error taxonomy returned by the block device layer.
// It mirrors the teacher's diskresult enum: a small integer type that
// implements error directly, so call sites can switch on the concrete value
// without allocating.
type BlockError uint8

const (
	blkOK BlockError = iota
	ErrNoResponse
	ErrEraseReset
	ErrIllegalCommand
	ErrCRC
	ErrEraseSequence
	ErrAddress
	ErrParameter
	ErrRegister
	ErrBlockRead
	ErrSDVersionOneUnsupported
	ErrCardCheckPatternMismatch
	ErrDataBufferLocked
	ErrBlockTimeout
	ErrBlockUnknown
)

var blockErrorStrings = [...]string{
	blkOK:                       "ok",
	ErrNoResponse:               "sd: no response from card",
	ErrEraseReset:               "sd: erase reset",
	ErrIllegalCommand:           "sd: illegal command",
	ErrCRC:                      "sd: CRC error",
	ErrEraseSequence:            "sd: erase sequence error",
	ErrAddress:                  "sd: address error",
	ErrParameter:                "sd: parameter error",
	ErrRegister:                 "sd: register read error",
	ErrBlockRead:                "sd: sector read error",
	ErrSDVersionOneUnsupported:  "sd: SD version 1 cards are unsupported",
	ErrCardCheckPatternMismatch: "sd: CMD8 check pattern mismatch",
	ErrDataBufferLocked:         "sd: buffer is locked by another borrow",
	ErrBlockTimeout:             "sd: operation timed out",
	ErrBlockUnknown:             "sd: unknown response",
}

func (e BlockError) Error() string {
	if int(e) < len(blockErrorStrings) && blockErrorStrings[e] != "" {
		return blockErrorStrings[e]
	}
	return fmt.Sprintf("sd: error(%d)", uint8(e))
}

// isOK reports whether e represents success. Used internally so that
// functions returning BlockError can be chained the way the teacher chains
// diskresult/fileResult values.
func (e BlockError) isOK() bool { return e == blkOK }

// FSError is the flat error taxonomy returned by the filesystem layer,
// mirroring the teacher's fileResult enum.
type FSError uint8

const (
	frOK FSError = iota
	ErrBlockDeviceFailed
	ErrCorruptMBR
	ErrBadPartitionNumber
	ErrCorruptPartition
	ErrUnsupportedVersion
	ErrFileClosed
	ErrSeek
	ErrInvalidCluster
	ErrCorruptFat
	ErrVolumeIDMismatch
	ErrNotADirectory
	ErrInvalidPosition
	ErrRead
	ErrTooManySubdirs
	ErrLfnParse
	ErrParsePath
	ErrFileNotFound
	ErrFSUnknown
	ErrForbiddenMode
	ErrInvalidMode
)

var fsErrorStrings = [...]string{
	frOK:                  "ok",
	ErrBlockDeviceFailed:  "fat32: block device failed",
	ErrCorruptMBR:         "fat32: corrupt MBR",
	ErrBadPartitionNumber: "fat32: bad partition number",
	ErrCorruptPartition:   "fat32: corrupt partition boot sector",
	ErrUnsupportedVersion: "fat32: unsupported FAT variant or geometry",
	ErrFileClosed:         "fat32: file is closed",
	ErrSeek:               "fat32: seek position out of range",
	ErrInvalidCluster:     "fat32: invalid cluster number",
	ErrCorruptFat:         "fat32: corrupt FAT",
	ErrVolumeIDMismatch:   "fat32: file does not belong to this volume",
	ErrNotADirectory:      "fat32: not a directory",
	ErrInvalidPosition:    "fat32: invalid position",
	ErrRead:               "fat32: read error",
	ErrTooManySubdirs:     "fat32: directory nesting exceeds limit",
	ErrLfnParse:           "fat32: malformed long filename run",
	ErrParsePath:          "fat32: malformed path component",
	ErrFileNotFound:       "fat32: file not found",
	ErrFSUnknown:          "fat32: unknown error",
	ErrForbiddenMode:      "fat32: forbidden open mode for this volume",
	ErrInvalidMode:        "fat32: invalid open mode",
}

func (e FSError) Error() string {
	if int(e) < len(fsErrorStrings) && fsErrorStrings[e] != "" {
		return fsErrorStrings[e]
	}
	return fmt.Sprintf("fat32: error(%d)", uint8(e))
}

func (e FSError) isOK() bool { return e == frOK }

// blockToFS maps every block-device error to a single bottom-level failure
// kind at the filesystem boundary, per the propagation rule: callers above
// the block device only ever observe ErrBlockDeviceFailed for hardware/wire
// failures, never the block-level enum.
func blockToFS(be BlockError) FSError {
	if be.isOK() {
		return frOK
	}
	return ErrBlockDeviceFailed
}
