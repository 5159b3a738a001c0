// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package softi2c implements a bit-banged I²C bus master on two GPIO lines.
//
// The bus drives SCL and SDA directly and needs no I²C peripheral. It exposes
// the elementary bus primitives (start, stop, byte send and receive,
// acknowledgment) for protocols that must toggle other lines in the middle of
// a transaction, and also implements i2c.Bus so regular periph drivers can use
// it.
//
// Clock stretching and multi-master arbitration are not supported. The only
// failure detection is the bounded acknowledgment wait in WaitAck.
package softi2c

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
)

// DefaultAckTimeout is the number of SDA polls WaitAck performs before giving
// up on an acknowledgment.
const DefaultAckTimeout = 1000

var (
	// ErrAckTimeout is returned when the target never pulled SDA low during
	// an acknowledgment wait.
	ErrAckTimeout = errors.New("softi2c: acknowledgment timeout")
	// ErrNoResponse is returned when the address header is not acknowledged.
	ErrNoResponse = errors.New("softi2c: no response on address")
	// ErrNack is returned when a data byte is not acknowledged.
	ErrNack = errors.New("softi2c: byte not acknowledged")

	errNilPin  = errors.New("softi2c: SCL and SDA pins are required")
	errClosed  = errors.New("softi2c: bus closed")
	errAddress = errors.New("softi2c: 10 bit addresses are not supported")
)

// Delayer blocks for the requested duration. clock.Clock satisfies it.
type Delayer interface {
	Sleep(d time.Duration)
}

// Opts holds the configuration options for the bus.
type Opts struct {
	// Timing is the bus timing table. Zero value uses DefaultTiming.
	Timing Timing
	// AckTimeout is the number of polls done by WaitAck. Zero uses
	// DefaultAckTimeout.
	AckTimeout int
	// Delay implements the waits between transitions. nil uses the wall
	// clock.
	Delay Delayer
	// PushPull releases SDA by driving it high instead of switching the pin
	// to input with a pull up. Only set it when the SDA GPIO is wired or
	// configured as open drain outside of periph; on a push-pull pin a
	// target pulling SDA low fights the master.
	PushPull bool
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Timing:     DefaultTiming,
	AckTimeout: DefaultAckTimeout,
}

// Bus is a bit-banged I²C master.
//
// The primitive methods (Start, Stop, Send, SendByte, WaitAck, Recv,
// SendAck), Err and ClearErr do not lock; a protocol sequence must hold Lock
// for the whole start…stop chain. Tx locks on its own.
type Bus struct {
	mu sync.Mutex

	scl gpio.PinIO
	sda gpio.PinIO

	t          Timing
	ackTimeout int
	delay      Delayer
	pushPull   bool

	err    error
	closed bool
}

// New returns a bit-banged bus on the scl and sda lines. Both lines are
// released (high) on return.
func New(scl, sda gpio.PinIO, opts *Opts) (*Bus, error) {
	if scl == nil || sda == nil {
		return nil, errNilPin
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	b := &Bus{
		scl:        scl,
		sda:        sda,
		t:          opts.Timing,
		ackTimeout: opts.AckTimeout,
		delay:      opts.Delay,
		pushPull:   opts.PushPull,
	}
	if b.t == (Timing{}) {
		b.t = DefaultTiming
	}
	if b.ackTimeout <= 0 {
		b.ackTimeout = DefaultAckTimeout
	}
	if b.delay == nil {
		b.delay = clock.New()
	}
	b.sdaHigh()
	b.sclHigh()
	if b.err != nil {
		return nil, fmt.Errorf("softi2c: initializing lines: %w", b.err)
	}
	return b, nil
}

// Register makes a bit-banged bus on scl and sda available through i2creg.
func Register(name string, aliases []string, scl, sda gpio.PinIO, opts *Opts) error {
	return i2creg.Register(name, aliases, -1, func() (i2c.BusCloser, error) {
		return New(scl, sda, opts)
	})
}

// Lock acquires exclusive ownership of the bus.
func (b *Bus) Lock() {
	b.mu.Lock()
}

// Unlock releases the bus.
func (b *Bus) Unlock() {
	b.mu.Unlock()
}

// Timing returns the timing table in use.
func (b *Bus) Timing() Timing {
	return b.t
}

// Sleep waits for d using the bus Delayer.
func (b *Bus) Sleep(d time.Duration) {
	b.delay.Sleep(d)
}

// Err returns the first pin error seen since the last call to ClearErr. The
// caller must hold Lock.
func (b *Bus) Err() error {
	return b.err
}

// ClearErr resets the sticky pin error. The caller must hold Lock.
func (b *Bus) ClearErr() {
	b.err = nil
}

// Tx implements i2c.Bus.
//
// The header byte is the 7 bit address shifted left with the R/W bit. If the
// header is not acknowledged the transaction is stopped and ErrNoResponse is
// returned.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7f {
		return errAddress
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	b.err = nil
	err := b.tx(byte(addr), w, r)
	if b.err != nil {
		// A pin failure makes every later ack read as a nack.
		return b.err
	}
	return err
}

func (b *Bus) tx(addr byte, w, r []byte) error {
	if len(w) != 0 || len(r) == 0 {
		b.Start()
		if !b.Send(addr << 1) {
			b.Stop()
			return fmt.Errorf("%w 0x%02x", ErrNoResponse, addr)
		}
		for i, c := range w {
			if !b.Send(c) {
				b.Stop()
				return fmt.Errorf("%w: byte %d of %d", ErrNack, i, len(w))
			}
		}
	}
	if len(r) != 0 {
		// Repeated start when a write phase preceded the read.
		b.Start()
		if !b.Send(addr<<1 | 1) {
			b.Stop()
			return fmt.Errorf("%w 0x%02x", ErrNoResponse, addr)
		}
		last := len(r) - 1
		for i := range r {
			r[i] = b.Recv()
			b.SendAck(i != last)
		}
	}
	b.Stop()
	return nil
}

// SetSpeed implements i2c.Bus.
//
// It rescales the clock high, clock low and data setup times to half of the
// requested period. Start, stop and acknowledgment timings are left
// unchanged.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("softi2c: invalid speed %s", f)
	}
	half := f.Period() / 2
	if half <= 0 {
		return fmt.Errorf("softi2c: speed %s too high", f)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.t.ClockHigh = half
	b.t.ClockLow = half
	b.t.DataSetup = half
	return nil
}

// SCL implements i2c.Pins.
func (b *Bus) SCL() gpio.PinIO {
	return b.scl
}

// SDA implements i2c.Pins.
func (b *Bus) SDA() gpio.PinIO {
	return b.sda
}

// Close implements i2c.BusCloser. Both lines are left released.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.err = nil
	b.sdaHigh()
	b.sclHigh()
	b.closed = true
	return b.err
}

// Halt implements conn.Resource.
func (b *Bus) Halt() error {
	return nil
}

func (b *Bus) String() string {
	return fmt.Sprintf("softi2c(%s, %s)", b.scl, b.sda)
}

var _ i2c.BusCloser = &Bus{}
var _ i2c.Pins = &Bus{}
