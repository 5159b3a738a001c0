// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp4728test

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// DefaultWriteTime is how long a simulated device stays busy after an EEPROM
// write.
const DefaultWriteTime = 25 * time.Millisecond

// Channel is the simulated content of one channel register.
type Channel struct {
	Value uint16
	// VRef selects the internal 2.048V reference.
	VRef bool
	// Gain selects the x2 gain.
	Gain bool
	// PD is the power down selection, 0 for normal operation.
	PD byte
}

func (c Channel) high() byte {
	h := byte(c.Value>>8) & 0x0f
	if c.VRef {
		h |= 0x80
	}
	if c.Gain {
		h |= 0x10
	}
	return h | (c.PD&3)<<5
}

func channelFrom(hi, lo byte) Channel {
	return Channel{
		Value: uint16(hi&0x0f)<<8 | uint16(lo),
		VRef:  hi&0x80 != 0,
		Gain:  hi&0x10 != 0,
		PD:    (hi >> 5) & 3,
	}
}

type mode int

const (
	modeIdle mode = iota
	modeRecv
	modeXmit
	modeIgnore
)

type command int

const (
	cmdNone command = iota
	cmdGeneralCall
	cmdReadAddress
	cmdAddressReply
	cmdAddressed
	cmdRead
	cmdWriteAddress
	cmdMultiWrite
	cmdSingleWrite
	cmdSequentialWrite
	cmdFastWrite
	cmdPowerDown
)

// Device is a simulated MCP4728.
type Device struct {
	// LDAC is the select line driven by the master.
	LDAC *Line
	// RDY is the ready line read by the master.
	RDY *Line
	// WriteTime is the EEPROM write duration.
	WriteTime time.Duration
	// Mute makes the device ignore the bus completely.
	Mute bool

	bus         *Bus
	field       byte
	eepromField byte
	input       [4]Channel
	eeprom      [4]Channel
	por         bool
	ldac        gpio.Level
	busyUntil   time.Duration

	// Bus state machine.
	mode     mode
	bit      int
	clocked  bool
	shift    byte
	pull     bool
	n        int
	cmd      command
	prev     command
	selected bool
	drop     bool
	xmitNext bool
	acked    bool
	tx       []byte
	txi      int

	// Command state.
	ch       int
	hi       byte
	newField byte
	commit   bool
	writes   int
}

// Address returns the on-wire write address currently answered by the
// device.
func (d *Device) Address() byte {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	return 0xc0 | d.field<<1
}

// EEPROMAddress returns the address stored in EEPROM.
func (d *Device) EEPROMAddress() byte {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	return 0xc0 | d.eepromField<<1
}

// Input returns the input register of channel ch.
func (d *Device) Input(ch int) Channel {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	return d.input[ch&3]
}

// EEPROM returns the EEPROM image of channel ch.
func (d *Device) EEPROM(ch int) Channel {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	return d.eeprom[ch&3]
}

// SetChannel preloads both registers of channel ch.
func (d *Device) SetChannel(ch int, c Channel) {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	d.input[ch&3] = c
	d.eeprom[ch&3] = c
}

// AddressWrites returns how many address writes were committed.
func (d *Device) AddressWrites() int {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	return d.writes
}

// Busy returns true while the device writes its EEPROM.
func (d *Device) Busy() bool {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	return !bool(d.ready())
}

func (d *Device) ready() gpio.Level {
	return d.bus.now >= d.busyUntil
}

func (d *Device) startWrite() {
	d.busyUntil = d.bus.now + d.WriteTime
}

func (d *Device) start() {
	d.pull = false
	if d.Mute {
		d.mode = modeIgnore
		return
	}
	d.prev = d.cmd
	if d.mode == modeIdle {
		d.prev = cmdNone
	}
	d.mode = modeRecv
	d.cmd = cmdNone
	d.bit, d.shift, d.clocked, d.n = 0, 0, false, 0
	d.drop, d.xmitNext = false, false
}

func (d *Device) stop() {
	d.pull = false
	if d.commit {
		d.field = d.newField
		d.eepromField = d.newField
		d.writes++
		d.startWrite()
	}
	d.mode = modeIdle
	d.cmd, d.prev = cmdNone, cmdNone
	d.selected, d.commit = false, false
}

func (d *Device) rising(l gpio.Level) {
	switch d.mode {
	case modeRecv:
		d.clocked = true
		if d.bit < 8 {
			d.shift <<= 1
			if l {
				d.shift |= 1
			}
			return
		}
		d.ackClock()
	case modeXmit:
		d.clocked = true
		if d.bit == 8 {
			d.acked = !bool(l)
		}
	}
}

func (d *Device) falling() {
	if !d.clocked {
		return
	}
	d.clocked = false
	switch d.mode {
	case modeRecv:
		if d.bit < 8 {
			d.bit++
			if d.bit == 8 {
				if d.handle(d.shift) {
					d.pull = true
				} else {
					d.mode = modeIgnore
				}
			}
			return
		}
		d.pull = false
		d.bit, d.shift = 0, 0
		d.n++
		switch {
		case d.drop:
			d.mode = modeIgnore
		case d.xmitNext:
			d.xmitNext = false
			d.mode = modeXmit
			d.txi = 0
			d.drive()
		}
	case modeXmit:
		if d.bit < 8 {
			d.bit++
			if d.bit < 8 {
				d.drive()
			} else {
				d.pull = false
			}
			return
		}
		if !d.acked {
			d.mode = modeIgnore
			d.pull = false
			return
		}
		d.txi++
		d.bit = 0
		d.drive()
	}
}

func (d *Device) drive() {
	c := d.tx[d.txi%len(d.tx)]
	d.pull = c&(0x80>>d.bit) == 0
}

// ackClock runs on the rising edge of the acknowledgment clock. Commands
// gated by LDAC sample it here.
func (d *Device) ackClock() {
	if d.n != 1 {
		return
	}
	switch d.cmd {
	case cmdReadAddress:
		d.selected = !bool(d.ldac)
	case cmdWriteAddress:
		d.drop = bool(d.ldac)
	}
}

// handle processes a received byte and returns true to acknowledge it.
func (d *Device) handle(c byte) bool {
	if d.n == 0 {
		switch {
		case c == 0x00:
			d.cmd = cmdGeneralCall
			return true
		case d.prev == cmdReadAddress:
			// Only the device selected by LDAC answers the read.
			if c != 0xc1 || !d.selected {
				return false
			}
			d.cmd = cmdAddressReply
			d.tx = []byte{d.eepromField<<5 | 0x10 | d.field<<1}
			d.xmitNext = true
			return true
		case c&0xf0 == 0xc0 && (c>>1)&7 == d.field:
			if c&1 == 1 {
				d.cmd = cmdRead
				d.tx = d.readback()
				d.xmitNext = true
				return true
			}
			d.cmd = cmdAddressed
			return true
		}
		return false
	}

	switch d.cmd {
	case cmdGeneralCall:
		if d.n == 1 && c == 0x0c {
			d.cmd = cmdReadAddress
			d.selected = false
			return true
		}
		return false
	case cmdAddressed:
		return d.command(c)
	case cmdWriteAddress:
		switch {
		case d.n == 2 && c&0xe3 == 0x62:
			d.newField = (c >> 2) & 7
			return true
		case d.n == 3 && c&0xe3 == 0x63 && (c>>2)&7 == d.newField:
			d.commit = true
			return true
		}
		return false
	case cmdMultiWrite:
		switch (d.n - 1) % 3 {
		case 0:
			if c&0xf8 != 0x40 {
				return false
			}
			d.ch = int(c>>1) & 3
		case 1:
			d.hi = c
		case 2:
			d.input[d.ch] = channelFrom(d.hi, c)
		}
		return true
	case cmdSingleWrite:
		switch d.n {
		case 2:
			d.hi = c
			return true
		case 3:
			d.input[d.ch] = channelFrom(d.hi, c)
			d.eeprom[d.ch] = d.input[d.ch]
			d.startWrite()
			return true
		}
		return false
	case cmdSequentialWrite:
		if d.ch > 3 {
			return false
		}
		if d.n%2 == 0 {
			d.hi = c
			return true
		}
		d.input[d.ch] = channelFrom(d.hi, c)
		d.eeprom[d.ch] = d.input[d.ch]
		d.ch++
		d.startWrite()
		return true
	case cmdFastWrite:
		if d.ch > 3 {
			return false
		}
		if d.n%2 == 1 {
			d.hi = c
			return true
		}
		ch := d.input[d.ch]
		ch.Value = uint16(d.hi&0x0f)<<8 | uint16(c)
		ch.PD = (d.hi >> 4) & 3
		d.input[d.ch] = ch
		d.ch++
		return true
	case cmdPowerDown:
		if d.n != 2 {
			return false
		}
		d.input[2].PD = (c >> 6) & 3
		d.input[3].PD = (c >> 4) & 3
		return true
	}
	return false
}

// command decodes the byte following an addressed write header.
func (d *Device) command(c byte) bool {
	switch {
	case c&0xe3 == 0x61:
		if (c>>2)&7 != d.field {
			return false
		}
		d.cmd = cmdWriteAddress
		return true
	case c&0xf8 == 0x40:
		d.cmd = cmdMultiWrite
		d.ch = int(c>>1) & 3
		return true
	case c&0xf8 == 0x58:
		d.cmd = cmdSingleWrite
		d.ch = int(c>>1) & 3
		return true
	case c&0xf8 == 0x50:
		d.cmd = cmdSequentialWrite
		d.ch = int(c>>1) & 3
		return true
	case c&0xe0 == 0x80:
		for i := range 4 {
			d.input[i].VRef = c&(0x08>>i) != 0
		}
		d.cmd = cmdNone
		return true
	case c&0xe0 == 0xc0:
		for i := range 4 {
			d.input[i].Gain = c&(0x08>>i) != 0
		}
		d.cmd = cmdNone
		return true
	case c&0xe0 == 0xa0:
		d.input[0].PD = (c >> 2) & 3
		d.input[1].PD = c & 3
		d.cmd = cmdPowerDown
		return true
	case c&0xc0 == 0x00:
		d.cmd = cmdFastWrite
		d.ch = 0
		d.hi = c
		return true
	}
	return false
}

// readback returns the 24 bytes sent on an addressed read: for each channel
// the input register then the EEPROM image, 3 bytes each.
func (d *Device) readback() []byte {
	var status byte
	if d.ready() {
		status |= 0x80
	}
	if d.por {
		status |= 0x40
	}
	out := make([]byte, 0, 24)
	for ch := range 4 {
		s := status | byte(ch)<<4
		out = append(out,
			s|d.field, d.input[ch].high(), byte(d.input[ch].Value),
			s|0x08|d.eepromField, d.eeprom[ch].high(), byte(d.eeprom[ch].Value))
	}
	return out
}
