// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"io"
	"os"
	"strconv"

	"github.com/GermanBionicSystems/dacbus/mcp4728"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// output is where tables are printed.
type output struct {
	w     io.Writer
	color bool
}

// stdout returns an output on the process stdout, colored when it is a
// terminal.
func stdout() output {
	fd := os.Stdout.Fd()
	return output{
		w:     colorable.NewColorableStdout(),
		color: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

func (o output) table(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(o.w)
	t.SetTitle(title)
	if o.color {
		t.SetStyle(table.StyleColoredBright)
	} else {
		t.SetStyle(table.StyleLight)
	}
	return t
}

func (o output) mark(ok bool, good, bad string) string {
	if ok {
		return good
	}
	if o.color {
		return text.FgHiRed.Sprint(bad)
	}
	return bad
}

// registers prints the decoded readback of the device at addr.
func (o output) registers(addr mcp4728.Address, r *mcp4728.Registers) {
	t := o.table("MCP4728 " + addr.String())
	t.AppendHeader(table.Row{"Channel", "Register", "Value", "VRef", "Gain", "PD", "Status", "Output"})
	for ch := range mcp4728.Channels {
		for _, reg := range []struct {
			name string
			r    mcp4728.Register
		}{{"input", r.Input[ch]}, {"eeprom", r.EEPROM[ch]}} {
			vref := "vdd"
			if reg.r.Config.VRef {
				vref = "internal"
			}
			gain := "x1"
			if reg.r.Config.Gain {
				gain = "x2"
			}
			out := "-"
			if reg.r.Config.VRef && reg.r.Config.PD == mcp4728.PDModeNormal {
				out = reg.r.Potential().String()
			}
			t.AppendRow(table.Row{
				mcp4728.Channel(ch).String(), reg.name, reg.r.Value, vref, gain,
				pdName(reg.r.Config.PD), o.mark(reg.r.Ready, "ready", "busy"), out,
			})
		}
		t.AppendSeparator()
	}
	t.Render()
}

// results prints the outcome of a provisioning pass.
func (o output) results(rs []mcp4728.SlotResult) {
	t := o.table("Provisioning")
	t.AppendHeader(table.Row{"Slot", "Found", "Target", "Final", "Reprogrammed", "Result"})
	for _, r := range rs {
		found, final := "-", "-"
		if r.Found != 0 {
			found = r.Found.String()
		}
		if r.Final != 0 {
			final = r.Final.String()
		}
		res := "ok"
		if r.Err != nil {
			res = r.Err.Error()
		}
		t.AppendRow(table.Row{r.Slot, found, r.Target.String(), final, strconv.FormatBool(r.Reprogrammed), o.mark(r.Err == nil, res, res)})
	}
	t.Render()
}

func pdName(pd mcp4728.PDMode) string {
	switch pd {
	case mcp4728.PDModeNormal:
		return "on"
	case mcp4728.PDMode1K:
		return "1k"
	case mcp4728.PDMode100K:
		return "100k"
	default:
		return "500k"
	}
}
