package sdfat32

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// CID is the decoded Card Identification register, per §3.1/§4.11.
type CID struct {
	ManufacturerID byte
	OEMID          uint16
	ProductName    [5]byte
	ProductRev     byte
	SerialNumber   uint32
	ManufDate      uint16 // packed month(4 bits)/year-since-2000(8 bits), raw per SD spec.
}

func decodeCID(raw [16]byte) CID {
	return CID{
		ManufacturerID: raw[0],
		OEMID:          uint16(raw[1])<<8 | uint16(raw[2]),
		ProductName:    [5]byte{raw[3], raw[4], raw[5], raw[6], raw[7]},
		ProductRev:     raw[8],
		SerialNumber:   uint32(raw[9])<<24 | uint32(raw[10])<<16 | uint32(raw[11])<<8 | uint32(raw[12]),
		ManufDate:      uint16(raw[13])<<8 | uint16(raw[14]),
	}
}

func (c CID) String() string {
	return fmt.Sprintf("CID{mfg=0x%02X name=%q rev=0x%02X serial=%d}",
		c.ManufacturerID, c.ProductName[:], c.ProductRev, c.SerialNumber)
}

// CSDVersion distinguishes the two CSD register layouts, selected by the
// CSD_STRUCTURE field (top two bits of byte 0).
type CSDVersion uint8

const (
	CSDVersion1 CSDVersion = iota // standard capacity
	CSDVersion2                   // SDHC/SDXC
)

// CSD is the decoded Card Specific Data register, per §3.1/§4.11. Only the
// read-side timing fields, command classes, read block length, capacity and
// the CRC are decoded; write-timing fields (write-protect, erase group sizing) are out of scope
// since the write path is a non-goal (§1).
type CSD struct {
	Version         CSDVersion
	TAAC            byte
	NSAC            byte
	TransferSpeed   byte
	CommandClasses  uint16
	ReadBlockLen    byte
	DeviceCapacity  uint64 // bytes
	crc7            byte
	crc7ValidBytes  []byte
}

func decodeCSD(raw [16]byte) CSD {
	c := CSD{
		TAAC:           raw[1],
		NSAC:           raw[2],
		TransferSpeed:  raw[3],
		CommandClasses: uint16(raw[4])<<4 | uint16(raw[5])>>4,
		ReadBlockLen:   raw[5] & 0x0F,
		crc7:           raw[15] >> 1,
	}
	c.crc7ValidBytes = append([]byte(nil), raw[:15]...)

	if raw[0]>>6 == 1 {
		c.Version = CSDVersion2
		// CSDv2: C_SIZE is a 22-bit field spanning bytes 7..9.
		cSize := uint64(raw[7]&0x3F)<<16 | uint64(raw[8])<<8 | uint64(raw[9])
		c.DeviceCapacity = (cSize + 1) * 512 * 1024
	} else {
		c.Version = CSDVersion1
		// CSDv1: C_SIZE (12 bits, bytes 6..8), C_SIZE_MULT (3 bits, bytes 9..10).
		cSize := uint64(raw[6]&0x03)<<10 | uint64(raw[7])<<2 | uint64(raw[8])>>6
		cSizeMult := uint64(raw[9]&0x03)<<1 | uint64(raw[10])>>7
		readBlLen := uint64(c.ReadBlockLen)
		c.DeviceCapacity = (cSize + 1) * (1 << (cSizeMult + 2)) * (1 << readBlLen)
	}
	return c
}

// IsValid recomputes the CRC7 over the first 15 bytes of the register and
// compares it to the stored checksum in byte 15, per §4.11: this CRC is a
// property of the register's content, decoded here rather than at the
// transport layer.
func (c CSD) IsValid() bool {
	if c.crc7ValidBytes == nil {
		return false
	}
	return crc7(c.crc7ValidBytes) == c.crc7
}

func (c CSD) String() string {
	return fmt.Sprintf("CSD{version=%d capacity=%s valid=%v}",
		c.Version, humanize.Bytes(c.DeviceCapacity), c.IsValid())
}
