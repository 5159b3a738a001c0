// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GermanBionicSystems/dacbus/mcp4728"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dacbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "GPIO3", cfg.Bus.SCL)
	assert.Equal(t, "GPIO2", cfg.Bus.SDA)
	assert.Equal(t, 1000, cfg.Bus.AckTimeout)
	assert.False(t, cfg.Bus.PushPull, "SDA must be released to the pull up by default")
	assert.Empty(t, cfg.Bus.Hardware)
	require.Len(t, cfg.Slots, 3)
	for i, s := range cfg.Slots {
		assert.Equal(t, int(mcp4728.DefaultAddresses[i]), s.Address)
		assert.NotEmpty(t, s.LDAC)
		assert.Empty(t, s.RDY)
	}
	assert.True(t, cfg.Provision.Verify)
	assert.Equal(t, 100*time.Millisecond, cfg.Provision.ReadyTimeout)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
bus:
  scl: GPIO5
  sda: GPIO6
  ack_timeout: 200
  push_pull: true
  speed: 50kHz
slots:
  - ldac: GPIO20
    rdy: GPIO21
    address: 0xC2
  - ldac: GPIO26
    address: 0xCE
provision:
  verify: false
  ready_timeout: 250ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, BusConfig{
		SCL:        "GPIO5",
		SDA:        "GPIO6",
		AckTimeout: 200,
		PushPull:   true,
		Speed:      "50kHz",
	}, cfg.Bus)
	assert.Equal(t, []SlotConfig{
		{LDAC: "GPIO20", RDY: "GPIO21", Address: 0xc2},
		{LDAC: "GPIO26", Address: 0xce},
	}, cfg.Slots)
	assert.Equal(t, ProvisionConfig{Verify: false, ReadyTimeout: 250 * time.Millisecond}, cfg.Provision)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("DACBUS_BUS_SCL", "GPIO11")
	t.Setenv("DACBUS_BUS_HARDWARE", "/dev/i2c-1")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "GPIO11", cfg.Bus.SCL)
	assert.Equal(t, "/dev/i2c-1", cfg.Bus.Hardware)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	testCases := map[string]string{
		"same pins":   "bus:\n  scl: GPIO2\n  sda: GPIO2\n",
		"no ldac":     "slots:\n  - address: 0xC0\n",
		"bad address": "slots:\n  - ldac: GPIO17\n    address: 0xC1\n",
		"too many":    "slots:\n" + repeat("  - ldac: GPIO17\n    address: 0xC0\n", 9),
		"bad timeout": "provision:\n  ready_timeout: -1s\n",
	}
	for name, content := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func repeat(s string, n int) string {
	out := ""
	for range n {
		out += s
	}
	return out
}

func TestParseAddress(t *testing.T) {
	a, err := parseAddress("0xC4")
	require.NoError(t, err)
	assert.Equal(t, mcp4728.Address(0xc4), a)

	a, err = parseAddress("200")
	require.NoError(t, err)
	assert.Equal(t, mcp4728.Address(0xc8), a)

	for _, s := range []string{"", "0x60", "0xC1", "0x1C0", "C0"} {
		_, err := parseAddress(s)
		assert.Error(t, err, s)
	}
}

func TestParseChannel(t *testing.T) {
	for s, want := range map[string]mcp4728.Channel{"A": 0, "b": 1, "C": 2, "d": 3, "0": 0, "3": 3} {
		got, err := parseChannel(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}
	for _, s := range []string{"", "E", "4", "-1"} {
		_, err := parseChannel(s)
		assert.Error(t, err, s)
	}
}

func TestParseValue(t *testing.T) {
	v, err := parseValue("2048")
	require.NoError(t, err)
	assert.Equal(t, uint16(2048), v)

	v, err = parseValue("0xfff")
	require.NoError(t, err)
	assert.Equal(t, uint16(4095), v)

	for _, s := range []string{"4096", "-1", "x"} {
		_, err := parseValue(s)
		assert.Error(t, err, s)
	}
}
