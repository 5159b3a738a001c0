// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mcp4728_test

import (
	"log"

	"github.com/GermanBionicSystems/dacbus/mcp4728"
	"github.com/GermanBionicSystems/dacbus/softi2c"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Example provisions three converters sharing one bus to 0xC0, 0xC4 and 0xC8,
// then sets channel C of the first one to midscale.
func Example() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	pin := func(name string) gpio.PinIO {
		p := gpioreg.ByName(name)
		if p == nil {
			log.Fatalf("failed to find %s", name)
		}
		return p
	}
	bus, err := softi2c.New(pin("GPIO3"), pin("GPIO2"), &softi2c.DefaultOpts)
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Close()

	var slots []mcp4728.Slot
	for i, name := range []string{"GPIO17", "GPIO27", "GPIO22"} {
		slots = append(slots, mcp4728.Slot{LDAC: pin(name), Address: mcp4728.DefaultAddresses[i]})
	}
	c, err := mcp4728.NewController(bus, slots, &mcp4728.DefaultOpts)
	if err != nil {
		log.Fatal(err)
	}
	results, err := c.Provision()
	for _, r := range results {
		log.Printf("slot %d: %s -> %s", r.Slot, r.Found, r.Final)
	}
	if err != nil {
		log.Fatal(err)
	}
	if err := c.SetVoltage(0xc0, mcp4728.ChannelC, 2048, false); err != nil {
		log.Fatal(err)
	}
}

// Example_hardwareBus drives an already provisioned converter through the
// I²C peripheral of the host.
func Example_hardwareBus() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Close()
	dev, err := mcp4728.New(bus, 0xc4)
	if err != nil {
		log.Fatal(err)
	}
	count, boost, err := mcp4728.PotentialToCount(3 * physic.Volt)
	if err != nil {
		log.Fatal(err)
	}
	cfg := mcp4728.Config{VRef: true, Gain: boost}
	if err := dev.Write(mcp4728.ChannelWrite{Channel: mcp4728.ChannelA, Value: count, Config: cfg}); err != nil {
		log.Fatal(err)
	}
	regs, err := dev.Registers()
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("channel A: %s", regs.Input[mcp4728.ChannelA].Potential())
}
