// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GermanBionicSystems/dacbus/mcp4728"
	"github.com/GermanBionicSystems/dacbus/softi2c"
	"github.com/spf13/viper"
)

// Config is the content of the configuration file.
type Config struct {
	Bus       BusConfig       `mapstructure:"bus"`
	Slots     []SlotConfig    `mapstructure:"slots"`
	Provision ProvisionConfig `mapstructure:"provision"`
}

// BusConfig describes the two-wire bus.
type BusConfig struct {
	// SCL and SDA are gpioreg pin names.
	SCL        string `mapstructure:"scl"`
	SDA        string `mapstructure:"sda"`
	AckTimeout int    `mapstructure:"ack_timeout"`
	// PushPull drives SDA high instead of releasing it to the pull up. Only
	// for an SDA pin that is open drain in hardware.
	PushPull bool `mapstructure:"push_pull"`
	// Speed overrides the bit rate, like "400kHz". Empty keeps the default
	// timing table.
	Speed string `mapstructure:"speed"`
	// Hardware is the i2creg name of a bus to use for channel commands
	// instead of the bit-banged one.
	Hardware string `mapstructure:"hardware"`
}

// SlotConfig describes one device position.
type SlotConfig struct {
	LDAC    string `mapstructure:"ldac"`
	RDY     string `mapstructure:"rdy"`
	Address int    `mapstructure:"address"`
}

// ProvisionConfig tunes the provisioning pass.
type ProvisionConfig struct {
	Verify       bool          `mapstructure:"verify"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
}

var defaultSlots = []map[string]any{
	{"ldac": "GPIO17", "address": int(mcp4728.DefaultAddresses[0])},
	{"ldac": "GPIO27", "address": int(mcp4728.DefaultAddresses[1])},
	{"ldac": "GPIO22", "address": int(mcp4728.DefaultAddresses[2])},
}

// LoadConfig reads the YAML file at path, if not empty, over the defaults.
// Every key can be overridden by a DACBUS_ environment variable, like
// DACBUS_BUS_SCL.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("bus.scl", "GPIO3")
	v.SetDefault("bus.sda", "GPIO2")
	v.SetDefault("bus.ack_timeout", softi2c.DefaultAckTimeout)
	v.SetDefault("bus.push_pull", false)
	v.SetDefault("bus.speed", "")
	v.SetDefault("bus.hardware", "")
	v.SetDefault("slots", defaultSlots)
	v.SetDefault("provision.verify", mcp4728.DefaultOpts.Verify)
	v.SetDefault("provision.ready_timeout", mcp4728.DefaultOpts.ReadyTimeout.String())

	v.SetEnvPrefix("DACBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration before any pin is touched.
func (c *Config) Validate() error {
	if c.Bus.SCL == "" || c.Bus.SDA == "" {
		return errors.New("config: bus.scl and bus.sda are required")
	}
	if c.Bus.SCL == c.Bus.SDA {
		return fmt.Errorf("config: scl and sda both use %s", c.Bus.SCL)
	}
	if len(c.Slots) == 0 || len(c.Slots) > mcp4728.MaxSlots {
		return fmt.Errorf("config: %d slots, want 1 to %d", len(c.Slots), mcp4728.MaxSlots)
	}
	for i, s := range c.Slots {
		if s.LDAC == "" {
			return fmt.Errorf("config: slot %d: ldac is required", i+1)
		}
		if s.Address < 0 || s.Address > 0xff || !mcp4728.Address(s.Address).Valid() {
			return fmt.Errorf("config: slot %d: invalid address %#x", i+1, s.Address)
		}
	}
	if c.Provision.ReadyTimeout < 0 {
		return fmt.Errorf("config: negative ready_timeout %s", c.Provision.ReadyTimeout)
	}
	return nil
}

// parseAddress accepts an 8 bit write address like 0xC4.
func parseAddress(s string) (mcp4728.Address, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	a := mcp4728.Address(v)
	if !a.Valid() {
		return 0, fmt.Errorf("invalid address %s: want 0xC0 to 0xCE", a)
	}
	return a, nil
}

// parseChannel accepts A to D, or 0 to 3.
func parseChannel(s string) (mcp4728.Channel, error) {
	switch u := strings.ToUpper(s); u {
	case "A", "B", "C", "D":
		return mcp4728.Channel(u[0] - 'A'), nil
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v >= mcp4728.Channels {
		return 0, fmt.Errorf("invalid channel %q: want A to D or 0 to 3", s)
	}
	return mcp4728.Channel(v), nil
}

// parseValue accepts a 12 bit count.
func parseValue(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	if v > mcp4728.MaxValue {
		return 0, fmt.Errorf("invalid value %d: want 0 to %d", v, mcp4728.MaxValue)
	}
	return uint16(v), nil
}
