// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mcp4728 drives Microchip MCP4728 quad 12 bit D/A converters.
//
// Every MCP4728 leaves the factory answering on the same address. To put
// several of them on one bus, the address stored in EEPROM has to be
// reprogrammed, and the chip only accepts the address read and address write
// commands while its LDAC line is pulsed low in the middle of the command,
// between two acknowledgments. Controller performs these sequences on a
// bit-banged bus from package softi2c, where it owns the timing of every
// edge, and provisions a set of slots to their canonical addresses.
//
// Dev implements the regular channel commands over any i2c.Bus.
//
// # Datasheet
//
// https://ww1.microchip.com/downloads/en/DeviceDoc/22187E.pdf
package mcp4728

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

const (
	// InternalRef is the internal precision reference.
	InternalRef physic.ElectricPotential = 2048 * physic.MilliVolt
	// Channels is the number of outputs.
	Channels = 4
	// ReadbackSize is the length of a full register read: for each channel
	// the input register then the EEPROM image, 3 bytes each.
	ReadbackSize = 6 * Channels
	// MaxValue is the largest 12 bit count.
	MaxValue = stepCount - 1
	// MaxSlots is the number of distinct addresses the address pins encode.
	MaxSlots = 8

	stepCount = 1 << 12

	cmdGeneralCall     byte = 0x00
	cmdReadAddress     byte = 0x0c
	hdrReadAddress     byte = 0xc1
	cmdFastWrite       byte = 0x00
	cmdMultiWrite      byte = 0x40
	cmdSequentialWrite byte = 0x50
	cmdSingleWrite     byte = 0x58
	cmdVRef            byte = 0x80
	cmdPowerDown       byte = 0xa0
	cmdGain            byte = 0xc0

	readyFlag byte = 0x80
	porFlag   byte = 0x40
	vrefBit   byte = 0x80
	gainBit   byte = 0x10
	pdMask    byte = 0x03
)

var (
	// ErrBusy is returned when a device keeps reporting an EEPROM write in
	// progress.
	ErrBusy = errors.New("mcp4728: device busy")
	// ErrInvalidSlot is returned for a slot number outside the configured
	// slots, or an invalid slot configuration.
	ErrInvalidSlot = errors.New("mcp4728: invalid slot")
	// ErrInvalidChannel is returned for a channel outside A to D.
	ErrInvalidChannel = errors.New("mcp4728: invalid channel")
	// ErrInvalidAddress is returned for an address outside 0xC0 to 0xCE.
	ErrInvalidAddress = errors.New("mcp4728: invalid address")
	// ErrDuplicateAddress is returned when two slots share a canonical
	// address.
	ErrDuplicateAddress = errors.New("mcp4728: duplicate address")
	// ErrBufferSize is returned when a readback buffer is not ReadbackSize
	// long.
	ErrBufferSize = errors.New("mcp4728: invalid buffer size")
	// ErrAddressMismatch is returned when a device still reports another
	// address after reprogramming.
	ErrAddressMismatch = errors.New("mcp4728: address mismatch")

	errInvalidVoltage    = errors.New("mcp4728: voltage out of range")
	errInvalidInputCount = errors.New("mcp4728: invalid number of inputs provided")
)

// Address is the 8 bit write address of a device as sent on the wire:
// 0xC0 | A2 A1 A0 << 1.
type Address byte

// DefaultAddress is the factory address.
const DefaultAddress Address = 0xc0

// AddressFromField returns the address whose A2..A0 bits are f.
func AddressFromField(f byte) Address {
	return 0xc0 | Address(f&7)<<1
}

// DecodeAddress returns the address stored in EEPROM from the byte a device
// sends back to a general call read address command.
func DecodeAddress(b byte) Address {
	return Address((b>>4)&0x0e | 0xc0)
}

// Field returns the A2..A0 bits.
func (a Address) Field() byte {
	return byte(a>>1) & 7
}

// Addr returns the 7 bit address used by i2c.Dev.
func (a Address) Addr() i2c.Addr {
	return i2c.Addr(a >> 1)
}

// Valid returns true if a is a write address of the MCP4728 family.
func (a Address) Valid() bool {
	return byte(a)&0xf1 == 0xc0
}

func (a Address) String() string {
	return fmt.Sprintf("0x%02X", byte(a))
}

// AddressOp is one of the three frames of the address write command.
type AddressOp byte

const (
	// AddressCurrent carries the address currently stored in the device.
	AddressCurrent AddressOp = 0x61
	// AddressNew carries the new address.
	AddressNew AddressOp = 0x62
	// AddressConfirm repeats the new address.
	AddressConfirm AddressOp = 0x63
)

// AddressCommand encodes one frame of the address write command.
func AddressCommand(op AddressOp, a Address) byte {
	return byte(a&0x0e)<<1 | byte(op)
}

// Channel is a D/A output, A to D.
type Channel byte

const (
	ChannelA Channel = iota
	ChannelB
	ChannelC
	ChannelD
)

// Selector returns the channel bits of a write command.
func (c Channel) Selector() byte {
	return byte(c&3) << 1
}

func (c Channel) String() string {
	if c >= Channels {
		return fmt.Sprintf("Channel(%d)", byte(c))
	}
	return string(rune('A' + c))
}

// PDMode is the power down mode of a channel.
type PDMode byte

const (
	PDModeNormal PDMode = iota
	// The remaining values specify resistance value used to tie the output pin
	// to ground.
	PDMode1K
	PDMode100K
	PDMode500K
)

// Config is the per channel configuration sent with every value.
type Config struct {
	// VRef selects the internal 2.048V reference instead of VDD.
	VRef bool
	// Gain doubles the output range. Only applies with the internal
	// reference.
	Gain bool
	// PD is the power down mode.
	PD PDMode
}

// DefaultConfig uses the internal reference with a gain of 2, for a 0 to
// 4.096V range.
var DefaultConfig = Config{VRef: true, Gain: true}

// high returns the configuration bits of the high data byte.
func (c Config) high() byte {
	var b byte
	if c.VRef {
		b |= vrefBit
	}
	if c.Gain {
		b |= gainBit
	}
	return b | (byte(c.PD)&pdMask)<<5
}

func configFrom(hi byte) Config {
	return Config{
		VRef: hi&vrefBit != 0,
		Gain: hi&gainBit != 0,
		PD:   PDMode((hi >> 5) & pdMask),
	}
}

// ChannelWrite is a value to program into one channel.
type ChannelWrite struct {
	Channel Channel
	// Value is the 12 bit count. Larger values are clamped.
	Value  uint16
	Config Config
	// Persist also writes the value and configuration to EEPROM.
	Persist bool
}

// frame returns the command, high and low bytes of a single channel write.
func (w *ChannelWrite) frame() []byte {
	v := clamp(w.Value)
	cmd := cmdMultiWrite
	if w.Persist {
		cmd = cmdSingleWrite
	}
	return []byte{cmd | w.Channel.Selector(), w.Config.high() | byte(v>>8), byte(v)}
}

func clamp(v uint16) uint16 {
	if v > MaxValue {
		return MaxValue
	}
	return v
}
