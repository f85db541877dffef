package sdfat32

import "context"

// BlockDevice is the sector-addressed storage abstraction the FAT32 layer
// is built on. *Disk implements it directly; tests use an in-memory fake
// (fixture_test.go's memBlockDevice), grounded on the teacher's
// vfs_test.go BlockByteSlice fixture; cmd/sdfatls uses the file-backed
// FileBlockDevice (fileblockdevice.go).
type BlockDevice interface {
	// ReadBlocks reads len(dst)/512 consecutive 512-byte sectors starting at
	// startBlock into dst. len(dst) must be a multiple of 512.
	ReadBlocks(dst []byte, startBlock int64) error
}

// ReadBlocks implements BlockDevice for *Disk by delegating to readSectors
// with a background context; callers needing cancellation use ReadBlocksContext.
func (d *Disk) ReadBlocks(dst []byte, startBlock int64) error {
	return d.ReadBlocksContext(context.Background(), dst, startBlock)
}

// ReadBlocksContext is ReadBlocks with an explicit context, letting a caller
// impose an outer deadline on top of the millisecond-bounded waits already
// described in §4.1 (§5 "Cancellation").
func (d *Disk) ReadBlocksContext(ctx context.Context, dst []byte, startBlock int64) error {
	err := d.readSectors(ctx, startBlock, dst)
	if !err.isOK() {
		return err
	}
	return nil
}

// ReadCardID reads and decodes the CID register (CMD10), per §4.11.
func (d *Disk) ReadCardID() (CID, error) {
	raw, err := d.readRegister(context.Background(), cmd10SendCID)
	if !err.isOK() {
		return CID{}, err
	}
	return decodeCID(raw), nil
}

// ReadCardSpecificData reads and decodes the CSD register (CMD9), per §4.11.
func (d *Disk) ReadCardSpecificData() (CSD, error) {
	raw, err := d.readRegister(context.Background(), cmd9SendCSD)
	if !err.isOK() {
		return CSD{}, err
	}
	return decodeCSD(raw), nil
}
