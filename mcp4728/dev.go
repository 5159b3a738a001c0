// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp4728

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Number of reads done by Registers while the device reports busy, and the
// wait between them.
const (
	busyRetries = 10
	busyWait    = 100 * time.Millisecond
)

type sleeper interface {
	Sleep(d time.Duration)
}

// Dev is an MCP4728 on an I²C bus.
type Dev struct {
	d     i2c.Dev
	addr  Address
	sleep sleeper
}

// New returns a handle to the device answering on addr.
//
// Waits use the bus when it implements Sleep(time.Duration), like
// softi2c.Bus, and the wall clock otherwise.
func New(bus i2c.Bus, addr Address) (*Dev, error) {
	if !addr.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	d := &Dev{
		d:     i2c.Dev{Bus: bus, Addr: uint16(addr.Addr())},
		addr:  addr,
		sleep: clock.New(),
	}
	if s, ok := bus.(sleeper); ok {
		d.sleep = s
	}
	return d, nil
}

// Address returns the address of the device.
func (d *Dev) Address() Address {
	return d.addr
}

// SetVoltage writes a 12 bit value to channel with DefaultConfig. Values above
// MaxValue are clamped. With persist the value is also saved to EEPROM, and
// the device is busy for a few dozen milliseconds afterward.
func (d *Dev) SetVoltage(channel Channel, value uint16, persist bool) error {
	return d.Write(ChannelWrite{Channel: channel, Value: value, Config: DefaultConfig, Persist: persist})
}

// Write programs one channel.
func (d *Dev) Write(w ChannelWrite) error {
	if w.Channel >= Channels {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, w.Channel)
	}
	if err := d.d.Tx(w.frame(), nil); err != nil {
		return fmt.Errorf("mcp4728: writing channel %s: %w", w.Channel, err)
	}
	return nil
}

// WriteAll programs several channels in one multi-write transaction. The
// Persist field is ignored.
func (d *Dev) WriteAll(ws ...ChannelWrite) error {
	if len(ws) == 0 || len(ws) > Channels {
		return errInvalidInputCount
	}
	b := make([]byte, 0, 3*len(ws))
	for i := range ws {
		if ws[i].Channel >= Channels {
			return fmt.Errorf("%w: %d", ErrInvalidChannel, ws[i].Channel)
		}
		w := ws[i]
		w.Persist = false
		b = append(b, w.frame()...)
	}
	if err := d.d.Tx(b, nil); err != nil {
		return fmt.Errorf("mcp4728: error writing to device: %w", err)
	}
	return nil
}

// WriteEEPROM programs consecutive channels starting at first, and saves
// them to EEPROM with a sequential write.
func (d *Dev) WriteEEPROM(first Channel, ws ...ChannelWrite) error {
	if first >= Channels {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, first)
	}
	if len(ws) == 0 || int(first)+len(ws) > Channels {
		return errInvalidInputCount
	}
	b := make([]byte, 1, 1+2*len(ws))
	b[0] = cmdSequentialWrite | first.Selector()
	for i := range ws {
		f := ws[i].frame()
		b = append(b, f[1], f[2])
	}
	if err := d.d.Tx(b, nil); err != nil {
		return fmt.Errorf("mcp4728: error writing to device: %w", err)
	}
	return nil
}

// FastWrite sends raw A/D count values to channels A to D. Bits 0-11 are the
// count, and bits 12 and 13 the power down mode. Use PotentialToCount to
// convert a specific voltage value to the count value.
//
// Exactly Channels values must be supplied.
func (d *Dev) FastWrite(values ...uint16) error {
	if len(values) != Channels {
		return errInvalidInputCount
	}
	w := make([]byte, len(values)*2)
	for ix, val := range values {
		w[ix*2] = cmdFastWrite | byte(val>>8)&0x3f // mask off the two high bits.
		w[ix*2+1] = byte(val & 0xff)
	}
	if err := d.d.Tx(w, nil); err != nil {
		return fmt.Errorf("mcp4728: %w", err)
	}
	return nil
}

// SetReference selects, per channel A to D, the internal reference (true) or
// VDD (false).
func (d *Dev) SetReference(internal [Channels]bool) error {
	return d.general(cmdVRef | bits(internal))
}

// SetGain selects, per channel A to D, the x2 gain (true) or x1 (false).
func (d *Dev) SetGain(x2 [Channels]bool) error {
	return d.general(cmdGain | bits(x2))
}

// SetPowerDown sets the power down mode of channels A to D.
func (d *Dev) SetPowerDown(modes [Channels]PDMode) error {
	var m [Channels]byte
	for i, pd := range modes {
		m[i] = byte(pd) & pdMask
	}
	return d.general(cmdPowerDown|m[0]<<2|m[1], m[2]<<6|m[3]<<4)
}

func (d *Dev) general(w ...byte) error {
	if err := d.d.Tx(w, nil); err != nil {
		return fmt.Errorf("mcp4728: %w", err)
	}
	return nil
}

// ReadData reads the input and EEPROM registers of the four channels into
// buf, which must be ReadbackSize long. Every byte but the last is
// acknowledged.
func (d *Dev) ReadData(buf []byte) error {
	if len(buf) != ReadbackSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrBufferSize, len(buf), ReadbackSize)
	}
	if err := d.d.Tx(nil, buf); err != nil {
		return fmt.Errorf("mcp4728: reading registers: %w", err)
	}
	return nil
}

// Registers reads and decodes the input and EEPROM registers. If the device
// signals it is busy with an EEPROM write, it retries up to 9 times and then
// returns the last registers read along with ErrBusy.
func (d *Dev) Registers() (Registers, error) {
	var r Registers
	buf := make([]byte, ReadbackSize)
	for i := range busyRetries {
		if i != 0 {
			// The device is busy with an eeprom write. Wait and try again.
			d.sleep.Sleep(busyWait)
		}
		if err := d.ReadData(buf); err != nil {
			return r, err
		}
		var err error
		if r, err = DecodeRegisters(buf); err != nil {
			return r, err
		}
		if r.Ready() {
			return r, nil
		}
	}
	return r, ErrBusy
}

// PotentialToCount converts the specified voltage to the count for the
// internal reference. It returns the required count and whether the x2 gain
// must be enabled. If the voltage is negative, or above twice the reference,
// an error is returned.
func PotentialToCount(v physic.ElectricPotential) (uint16, bool, error) {
	if v < 0 || v > 2*InternalRef {
		return 0, false, errInvalidVoltage
	}
	boost := false
	stepValue := InternalRef / MaxValue
	count := uint16(float64(v)/float64(stepValue) + 0.5)
	if count > MaxValue {
		boost = true
		count = count >> 1
	}
	return clamp(count), boost, nil
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("MCP4728{%s}", d.addr)
}

func bits(v [Channels]bool) byte {
	var b byte
	for i, on := range v {
		if on {
			b |= 0x08 >> i
		}
	}
	return b
}
