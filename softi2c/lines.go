// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Line level operations. Once a pin returns an error, the error is kept in
// b.err and every later operation is skipped until the error is cleared.

func (b *Bus) out(p gpio.PinIO, l gpio.Level) {
	if b.err != nil {
		return
	}
	if err := p.Out(l); err != nil {
		b.err = fmt.Errorf("softi2c: %s: %w", p, err)
	}
}

func (b *Bus) sclHigh() {
	b.out(b.scl, gpio.High)
}

func (b *Bus) sclLow() {
	b.out(b.scl, gpio.Low)
}

// sdaHigh releases SDA so the pull up, or a target, sets its level.
func (b *Bus) sdaHigh() {
	if b.pushPull {
		b.out(b.sda, gpio.High)
		return
	}
	if b.err != nil {
		return
	}
	if err := b.sda.In(gpio.PullUp, gpio.NoEdge); err != nil {
		b.err = fmt.Errorf("softi2c: %s: %w", b.sda, err)
	}
}

func (b *Bus) sdaLow() {
	b.out(b.sda, gpio.Low)
}

func (b *Bus) sdaOut(l gpio.Level) {
	if l {
		b.sdaHigh()
	} else {
		b.sdaLow()
	}
}

// sdaLevel samples SDA. A failed bus reads as released.
func (b *Bus) sdaLevel() gpio.Level {
	if b.err != nil {
		return gpio.High
	}
	return b.sda.Read()
}

func (b *Bus) wait(d time.Duration) {
	if d > 0 {
		b.delay.Sleep(d)
	}
}
