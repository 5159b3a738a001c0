// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp4728

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

const testAddr = 0x60

// readback of a factory device with channel C at midscale.
var pbReadback = []byte{
	0xc0, 0x00, 0x00, 0xc8, 0x00, 0x00,
	0xd0, 0x00, 0x00, 0xd8, 0x00, 0x00,
	0xe0, 0x98, 0x00, 0xe8, 0x00, 0x00,
	0xf0, 0x00, 0x00, 0xf8, 0x00, 0x00,
}

func playback(t *testing.T, ops ...i2ctest.IO) (*Dev, *i2ctest.Playback) {
	t.Helper()
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	d, err := New(pb, DefaultAddress)
	if err != nil {
		t.Fatal(err)
	}
	return d, pb
}

func TestNew(t *testing.T) {
	if _, err := New(&i2ctest.Playback{}, 0xc1); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("New(0xc1) = %v, want %v", err, ErrInvalidAddress)
	}
	d, err := New(&i2ctest.Playback{}, 0xc8)
	if err != nil {
		t.Fatal(err)
	}
	if d.Address() != 0xc8 {
		t.Errorf("Address() = %s", d.Address())
	}
	if s := d.String(); s != "MCP4728{0xC8}" {
		t.Errorf("String() = %q", s)
	}
	if err := d.Halt(); err != nil {
		t.Error(err)
	}
}

func TestSetVoltage(t *testing.T) {
	testCases := []struct {
		name    string
		channel Channel
		value   uint16
		persist bool
		w       []byte
	}{
		{"multi write", ChannelC, 2048, false, []byte{0x44, 0x98, 0x00}},
		{"single write", ChannelC, 2048, true, []byte{0x5c, 0x98, 0x00}},
		{"channel A", ChannelA, 0x321, false, []byte{0x40, 0x93, 0x21}},
		{"channel D", ChannelD, 0, true, []byte{0x5e, 0x90, 0x00}},
		{"clamped", ChannelB, 5000, false, []byte{0x42, 0x9f, 0xff}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, pb := playback(t, i2ctest.IO{Addr: testAddr, W: tc.w})
			if err := d.SetVoltage(tc.channel, tc.value, tc.persist); err != nil {
				t.Fatal(err)
			}
			if err := pb.Close(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestSetVoltageInvalidChannel(t *testing.T) {
	d, pb := playback(t)
	if err := d.SetVoltage(Channel(4), 0, false); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("SetVoltage(4) = %v, want %v", err, ErrInvalidChannel)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSetVoltageBusError(t *testing.T) {
	d, _ := playback(t)
	if err := d.SetVoltage(ChannelA, 1, false); err == nil {
		t.Error("expected error from an empty playback")
	}
}

func TestWriteAll(t *testing.T) {
	d, pb := playback(t, i2ctest.IO{Addr: testAddr, W: []byte{0x40, 0x81, 0x00, 0x46, 0x0f, 0xff}})
	err := d.WriteAll(
		ChannelWrite{Channel: ChannelA, Value: 256, Config: Config{VRef: true}},
		ChannelWrite{Channel: ChannelD, Value: 4095, Persist: true},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteAll(); err != errInvalidInputCount {
		t.Errorf("WriteAll() = %v", err)
	}
	if err := d.WriteAll(make([]ChannelWrite, 5)...); err != errInvalidInputCount {
		t.Errorf("WriteAll(5) = %v", err)
	}
}

func TestWriteEEPROM(t *testing.T) {
	d, pb := playback(t, i2ctest.IO{Addr: testAddr, W: []byte{0x52, 0x90, 0x10, 0x98, 0x00, 0x9f, 0xff}})
	err := d.WriteEEPROM(ChannelB,
		ChannelWrite{Value: 0x10, Config: DefaultConfig},
		ChannelWrite{Value: 2048, Config: DefaultConfig},
		ChannelWrite{Value: 4095, Config: DefaultConfig},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteEEPROM(ChannelC, make([]ChannelWrite, 3)...); err != errInvalidInputCount {
		t.Errorf("WriteEEPROM(C, 3) = %v", err)
	}
}

func TestGeneralCommands(t *testing.T) {
	d, pb := playback(t,
		i2ctest.IO{Addr: testAddr, W: []byte{0x8a}},
		i2ctest.IO{Addr: testAddr, W: []byte{0xcf}},
		i2ctest.IO{Addr: testAddr, W: []byte{0xa6, 0xc0}},
		i2ctest.IO{Addr: testAddr, W: []byte{0x00, 0x00, 0x10, 0x01, 0x20, 0x80, 0x3f, 0xff}},
	)
	if err := d.SetReference([Channels]bool{true, false, true, false}); err != nil {
		t.Fatal(err)
	}
	if err := d.SetGain([Channels]bool{true, true, true, true}); err != nil {
		t.Fatal(err)
	}
	if err := d.SetPowerDown([Channels]PDMode{PDMode1K, PDMode100K, PDMode500K, PDModeNormal}); err != nil {
		t.Fatal(err)
	}
	if err := d.FastWrite(0, 0x1001, 0x2080, 0xffff); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.FastWrite(1, 2, 3); err != errInvalidInputCount {
		t.Errorf("FastWrite(3 values) = %v", err)
	}
}

func TestReadData(t *testing.T) {
	d, pb := playback(t, i2ctest.IO{Addr: testAddr, R: pbReadback})
	buf := make([]byte, ReadbackSize)
	if err := d.ReadData(buf); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(pbReadback, buf); diff != "" {
		t.Errorf("ReadData() mismatch (-want +got):\n%s", diff)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.ReadData(make([]byte, 23)); !errors.Is(err, ErrBufferSize) {
		t.Errorf("ReadData(23 bytes) = %v, want %v", err, ErrBufferSize)
	}
}

func TestRegisters(t *testing.T) {
	d, pb := playback(t, i2ctest.IO{Addr: testAddr, R: pbReadback})
	r, err := d.Registers()
	if err != nil {
		t.Fatal(err)
	}
	want := Register{Value: 2048, Config: DefaultConfig, Ready: true, PowerOnReset: true, Address: 0xc0}
	if diff := cmp.Diff(want, r.Input[ChannelC]); diff != "" {
		t.Errorf("Input[C] mismatch (-want +got):\n%s", diff)
	}
	if r.EEPROM[ChannelC].Value != 0 {
		t.Errorf("EEPROM[C] = %s", r.EEPROM[ChannelC])
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

type countingSleeper struct {
	calls int
}

func (c *countingSleeper) Sleep(time.Duration) {
	c.calls++
}

func TestRegistersBusy(t *testing.T) {
	busy := append([]byte(nil), pbReadback...)
	busy[3] &^= readyFlag
	var ops []i2ctest.IO
	for range busyRetries {
		ops = append(ops, i2ctest.IO{Addr: testAddr, R: busy})
	}
	d, pb := playback(t, ops...)
	s := &countingSleeper{}
	d.sleep = s
	if _, err := d.Registers(); err != ErrBusy {
		t.Errorf("Registers() = %v, want %v", err, ErrBusy)
	}
	if s.calls != busyRetries-1 {
		t.Errorf("slept %d times, want %d", s.calls, busyRetries-1)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}
