// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/GermanBionicSystems/dacbus/mcp4728"
	"github.com/GermanBionicSystems/dacbus/softi2c"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// hardware is the opened bus and the controller on top of it.
type hardware struct {
	bus  *softi2c.Bus
	ctrl *mcp4728.Controller
	// i2c is the bus used for channel commands.
	i2c    i2c.Bus
	closer func() error
}

func (h *hardware) Close() error {
	err := h.bus.Close()
	if h.closer != nil {
		if err2 := h.closer(); err == nil {
			err = err2
		}
	}
	return err
}

// dev returns a handle to the device at addr on the channel command bus.
func (h *hardware) dev(addr mcp4728.Address) (*mcp4728.Dev, error) {
	return mcp4728.New(h.i2c, addr)
}

func pinByName(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("failed to find pin %s", name)
	}
	return p, nil
}

// openHardware initializes the host drivers and builds the bus and controller
// described by cfg.
func openHardware(cfg *Config, log *zap.Logger) (*hardware, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("host.Init(): %w", err)
	}
	log.Debug("host initialized", zap.Int("drivers", len(state.Loaded)))

	scl, err := pinByName(cfg.Bus.SCL)
	if err != nil {
		return nil, err
	}
	sda, err := pinByName(cfg.Bus.SDA)
	if err != nil {
		return nil, err
	}
	bus, err := softi2c.New(scl, sda, &softi2c.Opts{
		Timing:     softi2c.DefaultTiming,
		AckTimeout: cfg.Bus.AckTimeout,
		PushPull:   cfg.Bus.PushPull,
	})
	if err != nil {
		return nil, err
	}
	h := &hardware{bus: bus, i2c: bus}
	if cfg.Bus.Speed != "" {
		var f physic.Frequency
		if err := f.Set(cfg.Bus.Speed); err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("invalid bus speed %q: %w", cfg.Bus.Speed, err)
		}
		if err := bus.SetSpeed(f); err != nil {
			_ = h.Close()
			return nil, err
		}
	}

	slots := make([]mcp4728.Slot, 0, len(cfg.Slots))
	for _, s := range cfg.Slots {
		ldac, err := pinByName(s.LDAC)
		if err != nil {
			_ = h.Close()
			return nil, err
		}
		slot := mcp4728.Slot{LDAC: ldac, Address: mcp4728.Address(s.Address)}
		if s.RDY != "" {
			rdy, err := pinByName(s.RDY)
			if err != nil {
				_ = h.Close()
				return nil, err
			}
			if err := rdy.In(gpio.PullUp, gpio.NoEdge); err != nil {
				_ = h.Close()
				return nil, fmt.Errorf("configuring %s: %w", rdy, err)
			}
			slot.RDY = rdy
		}
		slots = append(slots, slot)
	}
	h.ctrl, err = mcp4728.NewController(bus, slots, &mcp4728.Opts{
		Verify:       cfg.Provision.Verify,
		ReadyTimeout: cfg.Provision.ReadyTimeout,
		Logger:       log,
	})
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	if cfg.Bus.Hardware != "" {
		hw, err := i2creg.Open(cfg.Bus.Hardware)
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("opening %s: %w", cfg.Bus.Hardware, err)
		}
		h.i2c, h.closer = hw, hw.Close
		log.Debug("channel commands use hardware bus", zap.Stringer("bus", hw))
	}
	log.Debug("bus ready", zap.Stringer("bus", bus), zap.Int("slots", len(slots)))
	return h, nil
}
