// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// dacbus provisions MCP4728 converters sharing a bit-banged bus and drives
// their channels.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/GermanBionicSystems/dacbus/mcp4728"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	flagConfig  = "config"
	flagDebug   = "debug"
	flagPersist = "persist"
)

// app holds what the commands share.
type app struct {
	cfg *Config
	log *zap.Logger
	out output
	// open is replaced in tests.
	open func(cfg *Config, log *zap.Logger) (*hardware, error)
}

func main() {
	a := &app{out: stdout(), open: openHardware}
	if err := a.cli().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dacbus: %s.\n", err)
		os.Exit(1)
	}
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:  "dacbus",
		Usage: "provision and drive MCP4728 converters on a bit-banged bus",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"DACBUS_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: a.before,
		After: func(*cli.Context) error {
			if a.log != nil {
				_ = a.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "provision",
				Usage:  "program every slot to its configured address",
				Action: a.provision,
			},
			{
				Name:      "set",
				Usage:     "write a 12 bit value to a channel",
				ArgsUsage: "<address> <channel> <value>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: flagPersist, Usage: "also save the value to EEPROM"},
				},
				Action: a.set,
			},
			{
				Name:      "dump",
				Usage:     "print the input and EEPROM registers of a device",
				ArgsUsage: "<address>",
				Action:    a.dump,
			},
		},
	}
}

func (a *app) before(c *cli.Context) error {
	cfg, err := LoadConfig(c.String(flagConfig))
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.log == nil {
		if c.Bool(flagDebug) {
			a.log, err = zap.NewDevelopment()
		} else {
			a.log, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
	}
	return nil
}

func (a *app) provision(c *cli.Context) error {
	h, err := a.open(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer h.Close()
	results, err := h.ctrl.Provision()
	a.out.results(results)
	return err
}

func (a *app) set(c *cli.Context) error {
	if c.NArg() != 3 {
		return cli.ShowSubcommandHelp(c)
	}
	addr, err := parseAddress(c.Args().Get(0))
	if err != nil {
		return err
	}
	ch, err := parseChannel(c.Args().Get(1))
	if err != nil {
		return err
	}
	v, err := parseValue(c.Args().Get(2))
	if err != nil {
		return err
	}
	h, err := a.open(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer h.Close()
	d, err := h.dev(addr)
	if err != nil {
		return err
	}
	if err := d.SetVoltage(ch, v, c.Bool(flagPersist)); err != nil {
		return err
	}
	a.log.Info("channel written",
		zap.Stringer("address", addr),
		zap.Stringer("channel", ch),
		zap.Uint16("value", v),
		zap.Bool("persist", c.Bool(flagPersist)))
	return nil
}

func (a *app) dump(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowSubcommandHelp(c)
	}
	addr, err := parseAddress(c.Args().First())
	if err != nil {
		return err
	}
	h, err := a.open(a.cfg, a.log)
	if err != nil {
		return err
	}
	defer h.Close()
	d, err := h.dev(addr)
	if err != nil {
		return err
	}
	r, err := d.Registers()
	if err != nil && !errors.Is(err, mcp4728.ErrBusy) {
		return err
	}
	a.out.registers(addr, &r)
	return err
}
