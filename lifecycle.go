package sdfat32

import "context"

// powerUp executes the seven-step handshake of §4.2, atomically from the
// caller's viewpoint: any error aborts the whole sequence and the Disk is
// left unusable (NewDisk discards it on error).
func (d *Disk) powerUp(ctx context.Context) error {
	d.trace("sd: power-up start")

	// 1. Hold CS and MOSI high for >=74 clock cycles: ten dummy 0xFF
	// transfers at 8 bits each give 80 cycles.
	d.unselect_()
	for i := 0; i < 10; i++ {
		d.xfer(idleByte)
	}

	// 2. Drive CS low, issue CMD0 until the card reports Idle.
	d.select_()
	if err := d.goIdle(); err != nil {
		d.unselect_()
		return err
	}

	// 3. CMD8: version probe and check-pattern validation.
	if err := d.checkSDVersion(ctx); err != nil {
		d.unselect_()
		return err
	}

	// 4. CMD59: enable CRC for all subsequent commands.
	if _, err := d.sendCommandFrame(cmd59CRCOnOff, 1); !err.isOK() {
		d.unselect_()
		return err
	}

	// 5. Poll ACMD41 until idle clears or SD_INIT_TIMEOUT_MS elapses.
	if err := d.waitOpCond(ctx); err != nil {
		d.unselect_()
		return err
	}

	// 6. CMD58: OCR read, upgrade to SDHC if both the power-up status bit
	// and the CCS bit (bits 31 and 30: byte0 bits 7 and 6) are set.
	if err := d.checkAndEnableSDHC(ctx); err != nil {
		d.unselect_()
		return err
	}

	// 7. Drive CS high and bump the SPI clock to its maximum rate.
	d.unselect_()
	if err := d.spi.SetClockMaxSpeed(); err != nil {
		return err
	}

	if d.version != SDVersionTwoSDHC {
		// Invariant 2 (§8): only v2+SDHC is accepted; anything else that
		// reached this point without already failing is still rejected.
		return ErrSDVersionOneUnsupported
	}

	d.debug("sd: power-up complete", "version", d.version.String())
	return nil
}

// goIdle issues CMD0 up to SD_CMD0_RETRY_COUNT times until the card reports
// Idle, per §4.2 step 2.
func (d *Disk) goIdle() error {
	for i := 0; i < d.cfg.CMD0RetryCount; i++ {
		resp, err := d.sendCommandFrame(cmd0GoIdleState, 0)
		if err.isOK() && resp&0x01 != 0 {
			return nil
		}
	}
	return ErrNoResponse
}

// checkSDVersion issues CMD8 with the 3.3V/0xAA check pattern argument, per
// §4.2 step 3.
func (d *Disk) checkSDVersion(ctx context.Context) error {
	_ = ctx
	_, trailing, err := d.sendCommandWide(cmd8SendIfCond, 0x1AA)
	if err == ErrIllegalCommand {
		d.version = SDVersionOne
		return ErrSDVersionOneUnsupported
	}
	if !err.isOK() {
		return err
	}
	if trailing[3] != 0xAA {
		return ErrCardCheckPatternMismatch
	}
	d.version = SDVersionTwo
	return nil
}

// waitOpCond polls ACMD41 (HCS=1) until the card clears its idle bit or
// SD_INIT_TIMEOUT_MS elapses, per §4.2 step 5.
func (d *Disk) waitOpCond(ctx context.Context) error {
	const acmd41HCS = 0x40000000
	deadline := d.clock() + d.cfg.InitTimeoutMS
	for {
		select {
		case <-ctx.Done():
			return ErrBlockTimeout
		default:
		}
		resp, err := d.sendAppCommand(acmd41SDSendOpCond, acmd41HCS)
		if err.isOK() && resp == 0 {
			return nil
		}
		if d.clock() > deadline {
			return ErrBlockTimeout
		}
	}
}

// checkAndEnableSDHC issues CMD58 (READ_OCR) and upgrades the detected
// version to v2+SDHC if the CCS bit is set, per §4.2 step 6.
func (d *Disk) checkAndEnableSDHC(ctx context.Context) error {
	_ = ctx
	_, trailing, err := d.sendCommandWide(cmd58ReadOCR, 0)
	if !err.isOK() {
		return err
	}
	if trailing[0]&0xC0 == 0xC0 {
		d.version = SDVersionTwoSDHC
	}
	return nil
}
