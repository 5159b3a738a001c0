// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp4728

import (
	"errors"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/dacbus/softi2c"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
)

// DefaultAddresses are the canonical addresses of the first three slots.
var DefaultAddresses = []Address{0xc0, 0xc4, 0xc8}

// Slot is a physical position on the bus, identified by the LDAC line wired
// to the device in that position.
type Slot struct {
	// LDAC is the select line of the device. Required.
	LDAC gpio.PinOut
	// RDY is the ready line of the device. Optional.
	RDY gpio.PinIn
	// Address is the canonical address the device must end up with.
	Address Address
}

// Opts holds the configuration options for a Controller.
type Opts struct {
	// Verify reads the address back after reprogramming a slot.
	Verify bool
	// ReadyTimeout bounds the wait for RDY after an address write.
	ReadyTimeout time.Duration
	// ReadyPoll is the interval between two RDY samples.
	ReadyPoll time.Duration
	// Logger receives provisioning progress. nil disables logging.
	Logger *zap.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Verify:       true,
	ReadyTimeout: 100 * time.Millisecond,
	ReadyPoll:    time.Millisecond,
}

// SlotResult is the outcome of provisioning one slot.
type SlotResult struct {
	// Slot is the 1 based slot number.
	Slot int
	// Found is the address read before any change. Zero when the read
	// failed.
	Found Address
	// Target is the canonical address of the slot.
	Target Address
	// Reprogrammed is true if an address write was issued.
	Reprogrammed bool
	// Final is the address the device reports at the end, or is assumed to
	// have when verification is disabled.
	Final Address
	// Err is the failure of this slot, if any.
	Err error
}

// Controller runs the LDAC assisted address sequences on a bit-banged bus.
type Controller struct {
	bus   *softi2c.Bus
	slots []Slot
	opts  Opts
	log   *zap.Logger
}

// NewController returns a controller for the devices wired to slots.
//
// Slots are numbered from 1 in the order given. Each slot needs its own LDAC
// line and a distinct valid address.
func NewController(bus *softi2c.Bus, slots []Slot, opts *Opts) (*Controller, error) {
	if bus == nil {
		return nil, errors.New("mcp4728: bus is required")
	}
	if len(slots) == 0 || len(slots) > MaxSlots {
		return nil, fmt.Errorf("%w: %d slots, want 1 to %d", ErrInvalidSlot, len(slots), MaxSlots)
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	seen := map[Address]int{}
	for i, s := range slots {
		if s.LDAC == nil {
			return nil, fmt.Errorf("%w: slot %d has no LDAC line", ErrInvalidSlot, i+1)
		}
		if !s.Address.Valid() {
			return nil, fmt.Errorf("%w: slot %d: %s", ErrInvalidAddress, i+1, s.Address)
		}
		if j, ok := seen[s.Address]; ok {
			return nil, fmt.Errorf("%w: %s used by slots %d and %d", ErrDuplicateAddress, s.Address, j, i+1)
		}
		seen[s.Address] = i + 1
	}
	c := &Controller{
		bus:   bus,
		slots: append([]Slot(nil), slots...),
		opts:  *opts,
		log:   opts.Logger,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.opts.ReadyPoll <= 0 {
		c.opts.ReadyPoll = DefaultOpts.ReadyPoll
	}
	return c, nil
}

// Slots returns the configured slots.
func (c *Controller) Slots() []Slot {
	return append([]Slot(nil), c.slots...)
}

// Bus returns the underlying bus.
func (c *Controller) Bus() *softi2c.Bus {
	return c.bus
}

// ReadAddress returns the address stored in the EEPROM of the device in slot
// n.
//
// It sends a general call read address command and pulls the LDAC line of
// the slot low before the acknowledgment of the command byte. Only the
// selected device answers the following read.
func (c *Controller) ReadAddress(n int) (Address, error) {
	s, err := c.slot(n)
	if err != nil {
		return 0, err
	}
	c.bus.Lock()
	defer c.bus.Unlock()
	c.bus.ClearErr()
	a, err := c.readAddress(s)
	return a, multierr.Append(err, c.releaseAll())
}

func (c *Controller) readAddress(s *Slot) (Address, error) {
	if err := c.releaseAll(); err != nil {
		return 0, err
	}
	b := c.bus
	b.Start()
	b.SendByte(cmdGeneralCall)
	if err := b.WaitAck(); err != nil {
		return 0, stepError("general call", err)
	}
	b.SendByte(cmdReadAddress)
	if err := s.LDAC.Out(gpio.Low); err != nil {
		b.Stop()
		return 0, fmt.Errorf("mcp4728: selecting %s: %w", s.LDAC, err)
	}
	if err := b.WaitAck(); err != nil {
		return 0, stepError("read address command", err)
	}
	b.Start()
	b.SendByte(hdrReadAddress)
	if err := b.WaitAck(); err != nil {
		return 0, stepError("read address header", err)
	}
	v := b.Recv()
	b.SendAck(false)
	b.Stop()
	if err := b.Err(); err != nil {
		return 0, err
	}
	return DecodeAddress(v), nil
}

// WriteAddress changes the address of the device in slot n from oldAddr to
// newAddr.
//
// The three command frames are always sent, also when both addresses are
// equal. After the stop condition it waits for the EEPROM write, then polls
// the RDY line of the slot, if any, and returns ErrBusy if the device does
// not become ready within Opts.ReadyTimeout.
func (c *Controller) WriteAddress(n int, oldAddr, newAddr Address) error {
	s, err := c.slot(n)
	if err != nil {
		return err
	}
	for _, a := range []Address{oldAddr, newAddr} {
		if !a.Valid() {
			return fmt.Errorf("%w: %s", ErrInvalidAddress, a)
		}
	}
	c.bus.Lock()
	defer c.bus.Unlock()
	c.bus.ClearErr()
	err = c.writeAddress(s, oldAddr, newAddr)
	err = multierr.Append(err, c.releaseAll())
	if err != nil {
		return err
	}
	return c.waitReady(s)
}

func (c *Controller) writeAddress(s *Slot, oldAddr, newAddr Address) error {
	if err := c.releaseAll(); err != nil {
		return err
	}
	b := c.bus
	b.Start()
	b.SendByte(byte(oldAddr))
	if err := b.WaitAck(); err != nil {
		return stepError("address header", err)
	}
	b.SendByte(AddressCommand(AddressCurrent, oldAddr))
	if err := s.LDAC.Out(gpio.Low); err != nil {
		b.Stop()
		return fmt.Errorf("mcp4728: selecting %s: %w", s.LDAC, err)
	}
	if err := b.WaitAck(); err != nil {
		return stepError("current address", err)
	}
	b.SendByte(AddressCommand(AddressNew, newAddr))
	if err := b.WaitAck(); err != nil {
		return stepError("new address", err)
	}
	b.SendByte(AddressCommand(AddressConfirm, newAddr))
	if err := b.WaitAck(); err != nil {
		return stepError("address confirmation", err)
	}
	b.Stop()
	b.Sleep(b.Timing().AddressSettle)
	return b.Err()
}

// waitReady polls RDY until the device finished its EEPROM write.
func (c *Controller) waitReady(s *Slot) error {
	if s.RDY == nil {
		return nil
	}
	for waited := time.Duration(0); s.RDY.Read() == gpio.Low; waited += c.opts.ReadyPoll {
		if waited >= c.opts.ReadyTimeout {
			return fmt.Errorf("%w: %s still low after %s", ErrBusy, s.RDY, waited)
		}
		c.bus.Sleep(c.opts.ReadyPoll)
	}
	return nil
}

// Provision brings every slot to its canonical address.
//
// For each slot in order it reads the current address, reprograms it if it
// differs, and reads it back when Opts.Verify is set. A failing slot does not
// stop the pass: the outcome of every slot is returned, along with the
// combination of the slot errors. All LDAC lines are left high.
func (c *Controller) Provision() ([]SlotResult, error) {
	results := make([]SlotResult, 0, len(c.slots))
	var errs error
	for i := range c.slots {
		r := c.provision(i + 1)
		results = append(results, r)
		errs = multierr.Append(errs, r.Err)
	}
	c.bus.Lock()
	errs = multierr.Append(errs, c.releaseAll())
	c.bus.Unlock()
	return results, errs
}

// InitializeDevices is an alias of Provision.
func (c *Controller) InitializeDevices() ([]SlotResult, error) {
	return c.Provision()
}

func (c *Controller) provision(n int) SlotResult {
	s := &c.slots[n-1]
	r := SlotResult{Slot: n, Target: s.Address}
	log := c.log.With(zap.Int("slot", n), zap.Stringer("target", s.Address))

	found, err := c.ReadAddress(n)
	if err != nil {
		r.Err = fmt.Errorf("mcp4728: slot %d: %w", n, err)
		log.Warn("reading address failed", zap.Error(err))
		return r
	}
	r.Found, r.Final = found, found
	if found == s.Address {
		log.Debug("address already programmed")
		return r
	}

	log.Info("programming address", zap.Stringer("from", found))
	if err := c.WriteAddress(n, found, s.Address); err != nil {
		r.Err = fmt.Errorf("mcp4728: slot %d: %w", n, err)
		log.Warn("writing address failed", zap.Error(err))
		return r
	}
	r.Reprogrammed = true
	r.Final = s.Address
	if !c.opts.Verify {
		return r
	}
	final, err := c.ReadAddress(n)
	if err != nil {
		r.Err = fmt.Errorf("mcp4728: slot %d: verifying: %w", n, err)
		log.Warn("verifying address failed", zap.Error(err))
		return r
	}
	r.Final = final
	if final != s.Address {
		r.Err = fmt.Errorf("%w: slot %d reports %s, want %s", ErrAddressMismatch, n, final, s.Address)
		log.Warn("address not programmed", zap.Stringer("final", final))
	}
	return r
}

// Dev returns a handle to the device answering on addr, on the controller's
// bus.
func (c *Controller) Dev(addr Address) (*Dev, error) {
	return New(c.bus, addr)
}

// SetVoltage writes value to channel of the device at addr. See
// Dev.SetVoltage.
func (c *Controller) SetVoltage(addr Address, channel Channel, value uint16, persist bool) error {
	d, err := c.Dev(addr)
	if err != nil {
		return err
	}
	return d.SetVoltage(channel, value, persist)
}

// ReadAllRegisters reads the registers of the device in slot 1 into buf,
// which must be ReadbackSize long.
func (c *Controller) ReadAllRegisters(buf []byte) error {
	d, err := c.Dev(c.slots[0].Address)
	if err != nil {
		return err
	}
	return d.ReadData(buf)
}

func (c *Controller) slot(n int) (*Slot, error) {
	if n < 1 || n > len(c.slots) {
		return nil, fmt.Errorf("%w: %d, want 1 to %d", ErrInvalidSlot, n, len(c.slots))
	}
	return &c.slots[n-1], nil
}

// releaseAll drives every LDAC line high.
func (c *Controller) releaseAll() error {
	var errs error
	for i := range c.slots {
		if err := c.slots[i].LDAC.Out(gpio.High); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mcp4728: releasing %s: %w", c.slots[i].LDAC, err))
		}
	}
	return errs
}

func stepError(step string, err error) error {
	return fmt.Errorf("mcp4728: %s: %w", step, err)
}
