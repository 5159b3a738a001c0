// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp4728

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Register is one decoded 3 byte register of a readback.
type Register struct {
	// Value is the 12 bit count.
	Value  uint16
	Config Config
	// Ready is false while an EEPROM write is in progress.
	Ready bool
	// PowerOnReset is true once the device left its power on reset.
	PowerOnReset bool
	// Address is the address reported in the status byte.
	Address Address
}

// Potential returns the output voltage for the register when the internal
// reference is used. It returns 0 when the channel is powered down or uses
// VDD, which is unknown to the device.
func (r Register) Potential() physic.ElectricPotential {
	if !r.Config.VRef || r.Config.PD != PDModeNormal {
		return 0
	}
	v := InternalRef * physic.ElectricPotential(r.Value) / stepCount
	if r.Config.Gain {
		v *= 2
	}
	return v
}

func (r Register) String() string {
	return fmt.Sprintf("%d vref=%t gain=%t pd=%d", r.Value, r.Config.VRef, r.Config.Gain, r.Config.PD)
}

// Registers is a decoded full readback.
type Registers struct {
	// Input holds the registers driving the outputs.
	Input [Channels]Register
	// EEPROM holds the values loaded at power up.
	EEPROM [Channels]Register
}

// Ready returns true if no register reports an EEPROM write in progress.
func (r *Registers) Ready() bool {
	for i := range Channels {
		if !r.Input[i].Ready || !r.EEPROM[i].Ready {
			return false
		}
	}
	return true
}

// DecodeRegisters decodes a ReadbackSize long buffer read from a device.
func DecodeRegisters(buf []byte) (Registers, error) {
	var r Registers
	if len(buf) != ReadbackSize {
		return r, fmt.Errorf("%w: got %d bytes, want %d", ErrBufferSize, len(buf), ReadbackSize)
	}
	for ch := range Channels {
		pos := ch * 6
		r.Input[ch] = decodeRegister(buf[pos : pos+3])
		r.EEPROM[ch] = decodeRegister(buf[pos+3 : pos+6])
	}
	return r, nil
}

func decodeRegister(b []byte) Register {
	return Register{
		Value:        uint16(b[1]&0x0f)<<8 | uint16(b[2]),
		Config:       configFrom(b[1]),
		Ready:        b[0]&readyFlag != 0,
		PowerOnReset: b[0]&porFlag != 0,
		Address:      AddressFromField(b[0] & 7),
	}
}
