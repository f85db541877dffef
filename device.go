package sdfat32

import (
	"context"
	"encoding/binary"
	"log/slog"
)

// SD SPI command numbers used by this revision. Write/erase commands are not
// listed since the write path is a non-goal.
const (
	cmd0GoIdleState       = 0
	cmd8SendIfCond        = 8
	cmd9SendCSD           = 9
	cmd10SendCID          = 10
	cmd12StopTransmission = 12
	cmd17ReadSingleBlock  = 17
	cmd18ReadMultiBlock   = 18
	cmd55AppCmd           = 55
	cmd58ReadOCR          = 58
	cmd59CRCOnOff         = 59
	acmd41SDSendOpCond    = 41
)

const (
	dataStartToken byte = 0xFE
	idleByte       byte = 0xFF

	// respPollBytes bounds the R1 response poll, per §4.1.
	respPollBytes = 10
)

// SPI is the byte-level peripheral contract the block device drives. It is
// the one external collaborator named in §1 as out of scope: "the SPI
// peripheral (byte in/out, clock reconfiguration)".
type SPI interface {
	// Transfer clocks out b and returns the byte clocked in simultaneously.
	Transfer(b byte) (byte, error)
	// SetClockMaxSpeed reconfigures the bus to the fastest rate the caller's
	// hardware supports, called once after card initialization (§4.2 step 7).
	SetClockMaxSpeed() error
}

// ChipSelect is the GPIO line selecting the card, the second out-of-scope
// collaborator named in §1.
type ChipSelect interface {
	High()
	Low()
}

// SDVersion is the detected protocol generation of the attached card.
type SDVersion uint8

const (
	SDVersionUnknown SDVersion = iota
	SDVersionOne
	SDVersionTwo
	SDVersionTwoSDHC
)

func (v SDVersion) String() string {
	switch v {
	case SDVersionOne:
		return "SDv1"
	case SDVersionTwo:
		return "SDv2"
	case SDVersionTwoSDHC:
		return "SDv2+SDHC"
	default:
		return "unknown"
	}
}

// bufMode is the last-operation memo state kept by Disk, independent from
// the BufferPool's own per-buffer mode (§9 "last op memo vs buffer cache").
type bufMode uint8

const (
	memoIdle bufMode = iota
	memoRead
	memoWrite
)

// Disk is the SD SPI block device: wire framing, CRC, sector/register reads,
// and the one-slot sequential-read memo (§3 "Block Device state").
type Disk struct {
	spi   SPI
	cs    ChipSelect
	clock func() uint32

	version SDVersion

	memoMode   bufMode
	lastSector int64

	cfg Config
	log *slog.Logger
}

// Config carries the tunable timeouts/retry counts named in §4.1/§4.2. The
// zero value is invalid; use DefaultConfig() or NewDisk's defaulting.
type Config struct {
	InitTimeoutMS  uint32 // SD_INIT_TIMEOUT_MS, bounds ACMD41 polling.
	ReadTimeoutMS  uint32 // SD_READ_TIMEOUT_MS, bounds data-start-token polling.
	CMD0RetryCount int    // SD_CMD0_RETRY_COUNT.
}

// DefaultConfig returns the timeouts and retry counts named in §4.1/§4.2.
func DefaultConfig() Config {
	return Config{
		InitTimeoutMS:  2000,
		ReadTimeoutMS:  300,
		CMD0RetryCount: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitTimeoutMS == 0 {
		c.InitTimeoutMS = d.InitTimeoutMS
	}
	if c.ReadTimeoutMS == 0 {
		c.ReadTimeoutMS = d.ReadTimeoutMS
	}
	if c.CMD0RetryCount == 0 {
		c.CMD0RetryCount = d.CMD0RetryCount
	}
	return c
}

// Option configures a Disk at construction time.
type Option func(*Disk)

// WithLogger attaches a structured logger, following the teacher's
// constructor-option idiom for optional dependencies.
func WithLogger(l *slog.Logger) Option {
	return func(d *Disk) { d.log = l }
}

// WithConfig overrides the default timeouts/retry counts.
func WithConfig(c Config) Option {
	return func(d *Disk) { d.cfg = c.withDefaults() }
}

const slogLevelTrace = slog.LevelDebug - 2

func (d *Disk) trace(msg string, args ...any) {
	if d.log != nil {
		d.log.Log(context.Background(), slogLevelTrace, msg, args...)
	}
}
func (d *Disk) debug(msg string, args ...any) {
	if d.log != nil {
		d.log.Debug(msg, args...)
	}
}
func (d *Disk) logerror(msg string, args ...any) {
	if d.log != nil {
		d.log.Error(msg, args...)
	}
}

// NewDisk constructs a Disk and runs the power-up handshake (§4.2) before
// returning, matching the teacher's preference for explicit constructor
// parameters over global state. On error the Disk is unusable and must be
// discarded; retry requires a new *Disk over the same peripherals.
func NewDisk(ctx context.Context, spi SPI, cs ChipSelect, clock func() uint32, opts ...Option) (*Disk, error) {
	d := &Disk{
		spi:     spi,
		cs:      cs,
		clock:   clock,
		version: SDVersionUnknown,
		cfg:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.powerUp(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Version reports the negotiated card version. Only SDVersionTwoSDHC is
// usable for sector-addressed reads; NewDisk fails before returning any
// other version (invariant 2, §8).
func (d *Disk) Version() SDVersion { return d.version }

func (d *Disk) select_()   { d.cs.Low() }
func (d *Disk) unselect_() { d.cs.High() }

func (d *Disk) xfer(b byte) byte {
	v, _ := d.spi.Transfer(b)
	return v
}

// sendCommandFrame frames and sends a normal (R1) command per §4.1's
// six-byte wire format, then polls for the response byte. It does not touch
// CS: callers that need the bus selected do so themselves so that several
// commands can be issued back to back while CS stays low (§4.1 "side
// effects").
func (d *Disk) sendCommandFrame(cmd byte, arg uint32) (byte, BlockError) {
	var frame [6]byte
	frame[0] = 0x40 | cmd
	binary.BigEndian.PutUint32(frame[1:5], arg)
	frame[5] = crc7(frame[:5])<<1 | 1
	for _, b := range frame {
		d.xfer(b)
	}
	d.xfer(idleByte) // one idle clock before polling the response.

	for i := 0; i < respPollBytes; i++ {
		resp := d.xfer(idleByte)
		if resp&0x80 == 0 {
			return resp, classifyR1(resp)
		}
	}
	return 0xFF, ErrNoResponse
}

// sendAppCommand issues CMD55 followed by the given ACMD, per the SD spec's
// "app command" prefixing convention used in ACMD41 polling (§4.2 step 5).
func (d *Disk) sendAppCommand(acmd byte, arg uint32) (byte, BlockError) {
	// CMD55's own response is ignored unless it is IllegalCommand: the card
	// reports Idle here during the whole ACMD41 polling loop by design, so
	// otherwise only the ACMD's own response byte (checked by the caller) is
	// meaningful.
	if _, err := d.sendCommandFrame(cmd55AppCmd, 0); err == ErrIllegalCommand {
		return 0, err
	}
	return d.sendCommandFrame(acmd, arg)
}

// sendCommandWide issues an R3/R7 command, reading four big-endian trailing
// bytes after the normal R1 response byte (§4.1).
func (d *Disk) sendCommandWide(cmd byte, arg uint32) (r1 byte, trailing [4]byte, err BlockError) {
	r1, err = d.sendCommandFrame(cmd, arg)
	if !err.isOK() {
		// A card that does not support this command (e.g. an SDv1 card
		// answering CMD8) sets IllegalCommand and never streams the trailing
		// bytes; the caller distinguishes this case by the error alone.
		return r1, trailing, err
	}
	for i := range trailing {
		trailing[i] = d.xfer(idleByte)
	}
	return r1, trailing, err
}

// classifyR1 maps an R1 response byte's status bits to a BlockError, per
// §4.1 and the resolved open question in SPEC_FULL.md §9 (CRC takes
// precedence over EraseSequence; EraseSequenceError has no producer here
// since the source branch that would set it is unreachable as written).
func classifyR1(resp byte) BlockError {
	switch {
	case resp&0x04 != 0: // IllegalCommand, bit2
		return ErrIllegalCommand
	case resp&0x08 != 0: // CRCError, bit3
		return ErrCRC
	case resp&0x10 != 0: // AddressError, bit4
		return ErrAddress
	case resp&0x20 != 0: // ParameterError, bit5
		return ErrParameter
	case resp&0x02 != 0: // EraseReset, bit1
		return ErrEraseReset
	case resp&0x01 != 0: // Idle, bit0: expected success during init.
		return blkOK
	case resp == 0:
		return blkOK
	default:
		return ErrBlockUnknown
	}
}

// waitDataToken polls for the 0xFE data-start token, bounded by
// SD_READ_TIMEOUT_MS via the Disk's clock function.
func (d *Disk) waitDataToken(ctx context.Context) BlockError {
	deadline := d.clock() + d.cfg.ReadTimeoutMS
	for {
		select {
		case <-ctx.Done():
			return ErrBlockTimeout
		default:
		}
		b := d.xfer(idleByte)
		if b == dataStartToken {
			return blkOK
		}
		if d.clock() > deadline {
			return ErrBlockTimeout
		}
	}
}

// readSectors reads count consecutive 512-byte sectors starting at lba into
// dst, which must have length count*512. It implements §4.1's single-sector
// (CMD17) and multi-sector (CMD18+CMD12) paths, and maintains the
// last-operation memo so a follow-on call at lastSector+1 can, in principle,
// skip command re-issue; this Disk always re-issues the framing (no hidden
// bus state survives between calls in this Go binding) but still tracks the
// memo in its unexported memoMode/lastSector fields.
func (d *Disk) readSectors(ctx context.Context, lba int64, dst []byte) BlockError {
	if len(dst) == 0 || len(dst)%512 != 0 {
		return ErrParameter
	}
	count := len(dst) / 512

	d.select_()
	defer d.unselect_()

	var cmd byte
	if count == 1 {
		cmd = cmd17ReadSingleBlock
	} else {
		cmd = cmd18ReadMultiBlock
	}
	_, err := d.sendCommandFrame(cmd, uint32(lba))
	if !err.isOK() {
		d.invalidateMemo()
		return err
	}

	for i := 0; i < count; i++ {
		if err := d.waitDataToken(ctx); !err.isOK() {
			d.invalidateMemo()
			return err
		}
		sector := dst[i*512 : (i+1)*512]
		for j := range sector {
			sector[j] = d.xfer(idleByte)
		}
		gotCRC := uint16(d.xfer(idleByte))<<8 | uint16(d.xfer(idleByte))
		wantCRC := crc16(sector)
		if gotCRC != wantCRC {
			d.invalidateMemo()
			return ErrCRC
		}
	}

	if count > 1 {
		d.sendCommandFrame(cmd12StopTransmission, 0)
	}

	d.memoMode = memoRead
	d.lastSector = lba + int64(count) - 1
	return blkOK
}

// invalidateMemo clears the last-operation memo, per §9: invalidate whenever
// a non-read command is issued.
func (d *Disk) invalidateMemo() {
	d.memoMode = memoIdle
	d.lastSector = -1
}

// readRegister implements the R2 response framing used by CMD9/CMD10: wait
// for the data-start token, stream 16 payload bytes, then a 16-bit CRC.
func (d *Disk) readRegister(ctx context.Context, cmd byte) ([16]byte, BlockError) {
	var out [16]byte
	d.select_()
	defer d.unselect_()

	d.invalidateMemo() // CMD9/CMD10 is a non-read command for the memo's purposes.
	_, err := d.sendCommandFrame(cmd, 0)
	if !err.isOK() {
		return out, err
	}
	if err := d.waitDataToken(ctx); !err.isOK() {
		return out, err
	}
	for i := range out {
		out[i] = d.xfer(idleByte)
	}
	_ = d.xfer(idleByte) // CRC16 high byte, not verified here: CSD.IsValid() re-checks its CRC7 at the decoded-struct layer.
	_ = d.xfer(idleByte) // CRC16 low byte.
	return out, blkOK
}
