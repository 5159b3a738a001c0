// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mcp4728test implements a virtual two-wire bus populated with
// simulated MCP4728 devices.
//
// The bus is made of fake GPIO lines. SDA is wired-AND: it reads low when the
// master or any device pulls it low. Devices decode start and stop conditions
// and clock edges the way the real chip does, so a bit-banged master can be
// tested at the signal level. Time is virtual: Bus implements Sleep and only
// advances when it is called.
package mcp4728test

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type lineKind int

const (
	lineSCL lineKind = iota
	lineSDA
	lineLDAC
	lineRDY
	lineLoose
)

// Line is a fake GPIO line attached to a Bus.
type Line struct {
	gpiotest.Pin
	bus  *Bus
	kind lineKind
	dev  *Device
}

// Out implements gpio.PinOut.
func (l *Line) Out(v gpio.Level) error {
	l.bus.mu.Lock()
	defer l.bus.mu.Unlock()
	l.L = v
	l.bus.drive(l, v)
	return nil
}

// In implements gpio.PinIn. On SCL and SDA it releases the line.
func (l *Line) In(pull gpio.Pull, edge gpio.Edge) error {
	l.bus.mu.Lock()
	defer l.bus.mu.Unlock()
	l.P = pull
	if l.kind == lineSCL || l.kind == lineSDA {
		l.L = gpio.High
		l.bus.drive(l, gpio.High)
	}
	return nil
}

// Read implements gpio.PinIn.
func (l *Line) Read() gpio.Level {
	l.bus.mu.Lock()
	defer l.bus.mu.Unlock()
	switch l.kind {
	case lineSCL:
		return l.bus.scl
	case lineSDA:
		return l.bus.level()
	case lineRDY:
		return l.dev.ready()
	}
	return l.L
}

// Transaction is the sequence of bytes seen on the bus between a start
// condition and the next start or stop condition.
type Transaction struct {
	// Repeated is true when the transaction began with a repeated start.
	Repeated bool
	// Bytes holds every complete byte, whoever drove it.
	Bytes []byte
	// Acks holds the level of SDA on the 9th clock of each byte: true for
	// an acknowledgment.
	Acks []bool
}

func (t Transaction) String() string {
	return fmt.Sprintf("{repeated:%t bytes:% x acks:%v}", t.Repeated, t.Bytes, t.Acks)
}

// Bus is a virtual two-wire bus.
type Bus struct {
	// SCL and SDA are the master lines.
	SCL *Line
	SDA *Line

	mu      sync.Mutex
	now     time.Duration
	scl     gpio.Level
	sda     gpio.Level
	devices []*Device

	// Bus monitor.
	txs    []Transaction
	cur    int
	bits   []gpio.Level
	starts int
	stops  int
}

// NewBus returns an idle bus with no device.
func NewBus() *Bus {
	b := &Bus{scl: gpio.High, sda: gpio.High, cur: -1}
	b.SCL = &Line{Pin: gpiotest.Pin{N: "SCL", L: gpio.High}, bus: b, kind: lineSCL}
	b.SDA = &Line{Pin: gpiotest.Pin{N: "SDA", L: gpio.High}, bus: b, kind: lineSDA}
	return b
}

// AddDevice attaches an MCP4728 whose address bits A2..A0 are field.
// Factory parts use field 0.
func (b *Bus) AddDevice(field byte) *Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.devices) + 1
	d := &Device{
		bus:         b,
		field:       field & 7,
		eepromField: field & 7,
		por:         true,
		ldac:        gpio.High,
		WriteTime:   DefaultWriteTime,
	}
	d.LDAC = &Line{Pin: gpiotest.Pin{N: fmt.Sprintf("LDAC%d", n), Num: n, L: gpio.High}, bus: b, kind: lineLDAC, dev: d}
	d.RDY = &Line{Pin: gpiotest.Pin{N: fmt.Sprintf("RDY%d", n), Num: n, L: gpio.High}, bus: b, kind: lineRDY, dev: d}
	b.devices = append(b.devices, d)
	return d
}

// Loose returns a line connected to nothing, for slots without a device.
func (b *Bus) Loose(name string) *Line {
	return &Line{Pin: gpiotest.Pin{N: name, L: gpio.High}, bus: b, kind: lineLoose}
}

// Devices returns the attached devices in the order they were added.
func (b *Bus) Devices() []*Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Device(nil), b.devices...)
}

// Sleep advances the virtual clock.
func (b *Bus) Sleep(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now += d
}

// Now returns the virtual time elapsed since the bus was created.
func (b *Bus) Now() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

// Transactions returns what the monitor decoded so far.
func (b *Bus) Transactions() []Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Transaction, len(b.txs))
	copy(out, b.txs)
	return out
}

// Conditions returns the number of start (including repeated) and stop
// conditions seen.
func (b *Bus) Conditions() (starts, stops int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.starts, b.stops
}

// Idle returns true when no transaction is open and both lines are high.
func (b *Bus) Idle() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur == -1 && bool(b.scl && b.level())
}

// ClearTransactions drops the monitor history.
func (b *Bus) ClearTransactions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs = nil
	if b.cur != -1 {
		b.txs = append(b.txs, Transaction{})
		b.cur = 0
	}
}

// level is the wired-AND level of SDA.
func (b *Bus) level() gpio.Level {
	if !b.sda {
		return gpio.Low
	}
	for _, d := range b.devices {
		if d.pull {
			return gpio.Low
		}
	}
	return gpio.High
}

func (b *Bus) drive(l *Line, v gpio.Level) {
	switch l.kind {
	case lineSCL:
		if b.scl == v {
			return
		}
		b.scl = v
		if v {
			b.rising()
		} else {
			b.falling()
		}
	case lineSDA:
		before := b.level()
		b.sda = v
		after := b.level()
		if b.scl && before != after {
			if after {
				b.stop()
			} else {
				b.start()
			}
		}
	case lineLDAC:
		l.dev.ldac = v
	}
}

func (b *Bus) start() {
	b.starts++
	b.txs = append(b.txs, Transaction{Repeated: b.cur != -1})
	b.cur = len(b.txs) - 1
	b.bits = nil
	for _, d := range b.devices {
		d.start()
	}
}

func (b *Bus) stop() {
	b.stops++
	b.cur = -1
	b.bits = nil
	for _, d := range b.devices {
		d.stop()
	}
}

func (b *Bus) rising() {
	lv := b.level()
	if b.cur != -1 {
		b.bits = append(b.bits, lv)
		if len(b.bits) == 9 {
			var c byte
			for _, bit := range b.bits[:8] {
				c <<= 1
				if bit {
					c |= 1
				}
			}
			t := &b.txs[b.cur]
			t.Bytes = append(t.Bytes, c)
			t.Acks = append(t.Acks, !bool(b.bits[8]))
			b.bits = nil
		}
	}
	for _, d := range b.devices {
		d.rising(lv)
	}
}

func (b *Bus) falling() {
	for _, d := range b.devices {
		d.falling()
	}
}
