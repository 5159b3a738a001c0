// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c

import "time"

// Timing holds the waits inserted between line transitions.
//
// The names follow the I²C AC characteristics table of the MCP4728 datasheet
// (DS22187E, table 1-2). The defaults satisfy standard mode (100kHz) minimums.
type Timing struct {
	// SetupStart is the wait with both lines high before SDA falls (tSU:STA).
	SetupStart time.Duration
	// HoldStart is the wait after SDA falls before SCL falls (tHD:STA).
	HoldStart time.Duration
	// SetupStop is the wait with both lines low before SCL rises (tSU:STO).
	SetupStop time.Duration
	// BusFree is the wait after a stop condition (tBUF).
	BusFree time.Duration
	// DataSetup is the wait between setting SDA and raising SCL (tSU:DAT).
	DataSetup time.Duration
	// ClockHigh is the SCL high time of a data bit (tHIGH).
	ClockHigh time.Duration
	// ClockLow is the SCL low time of a data bit (tLOW).
	ClockLow time.Duration
	// AckSetup is the wait before and after raising SCL in WaitAck.
	AckSetup time.Duration
	// AckClock is the SCL high and low time of an acknowledgment bit and of a
	// received data bit.
	AckClock time.Duration
	// AddressSettle is the wait after an address write for the device to
	// store its new address in EEPROM.
	AddressSettle time.Duration
}

// DefaultTiming is a standard mode timing table.
var DefaultTiming = Timing{
	SetupStart:    4 * time.Microsecond,
	HoldStart:     4 * time.Microsecond,
	SetupStop:     5 * time.Microsecond,
	BusFree:       5 * time.Microsecond,
	DataSetup:     2 * time.Microsecond,
	ClockHigh:     2 * time.Microsecond,
	ClockLow:      2 * time.Microsecond,
	AckSetup:      1 * time.Microsecond,
	AckClock:      5 * time.Microsecond,
	AddressSettle: 20 * time.Millisecond,
}
