// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c

import "periph.io/x/conn/v3/gpio"

// Start issues a start condition: SDA falls while SCL is high. SCL is left
// low.
//
// Issued again before Stop, it is a repeated start.
func (b *Bus) Start() {
	b.sdaHigh()
	b.sclHigh()
	b.wait(b.t.SetupStart)
	b.sdaLow()
	b.wait(b.t.HoldStart)
	b.sclLow()
}

// Stop issues a stop condition: SDA rises while SCL is high. Both lines are
// left released.
func (b *Bus) Stop() {
	b.sclLow()
	b.sdaLow()
	b.wait(b.t.SetupStop)
	b.sclHigh()
	b.sdaHigh()
	b.wait(b.t.BusFree)
}

// Send shifts out c most significant bit first, then samples the
// acknowledgment bit once. It returns true if the target acknowledged.
func (b *Bus) Send(c byte) bool {
	b.shiftOut(c)
	b.sdaHigh()
	return b.recvAck()
}

// SendByte shifts out c most significant bit first and leaves SCL low before
// the acknowledgment clock. The caller must follow with WaitAck.
func (b *Bus) SendByte(c byte) {
	b.shiftOut(c)
}

// WaitAck releases SDA, raises SCL and polls SDA until the target pulls it
// low. After AckTimeout polls reading high it issues a stop condition and
// returns ErrAckTimeout.
func (b *Bus) WaitAck() error {
	b.sdaHigh()
	b.wait(b.t.AckSetup)
	b.sclHigh()
	b.wait(b.t.AckSetup)
	for polls := 1; b.sdaLevel() == gpio.High; polls++ {
		if b.err != nil {
			return b.err
		}
		if polls >= b.ackTimeout {
			b.Stop()
			return ErrAckTimeout
		}
	}
	b.sclLow()
	return b.err
}

// Recv releases SDA and clocks in 8 bits, most significant bit first. It
// does not acknowledge; call SendAck next.
func (b *Bus) Recv() byte {
	var c byte
	b.sdaHigh()
	for range 8 {
		c <<= 1
		b.sclHigh()
		b.wait(b.t.AckClock)
		if b.sdaLevel() == gpio.High {
			c |= 1
		}
		b.sclLow()
		b.wait(b.t.AckClock)
	}
	return c
}

// SendAck clocks out an acknowledgment bit. ack true pulls SDA low to ask for
// more data; false leaves it high to end the read.
func (b *Bus) SendAck(ack bool) {
	b.sdaOut(gpio.Level(!ack))
	b.sclHigh()
	b.wait(b.t.AckClock)
	b.sclLow()
	b.wait(b.t.AckClock)
}

// shiftOut is the bit routine shared by Send and SendByte.
func (b *Bus) shiftOut(c byte) {
	b.sclLow()
	for range 8 {
		b.sdaOut(c&0x80 != 0)
		c <<= 1
		b.wait(b.t.DataSetup)
		b.sclHigh()
		b.wait(b.t.ClockHigh)
		b.sclLow()
		b.wait(b.t.ClockLow)
	}
}

// recvAck samples a single acknowledgment bit.
func (b *Bus) recvAck() bool {
	b.sclHigh()
	b.wait(b.t.AckClock)
	l := b.sdaLevel()
	b.sclLow()
	b.wait(b.t.AckClock)
	return l == gpio.Low && b.err == nil
}
