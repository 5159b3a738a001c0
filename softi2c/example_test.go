// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package softi2c_test

import (
	"log"

	"github.com/GermanBionicSystems/dacbus/softi2c"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/host/v3"
)

func Example() {
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	scl := gpioreg.ByName("GPIO3")
	sda := gpioreg.ByName("GPIO2")
	if scl == nil || sda == nil {
		log.Fatal("failed to find GPIO pins")
	}
	bus, err := softi2c.New(scl, sda, &softi2c.DefaultOpts)
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Close()

	// Any periph I²C driver can use the bit-banged bus.
	d := i2c.Dev{Bus: bus, Addr: 0x60}
	r := make([]byte, 24)
	if err := d.Tx(nil, r); err != nil {
		log.Fatal(err)
	}
	log.Printf("% x", r)
}
