// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dacbus is a container for the MCP4728 bus tooling.
//
// Package softi2c is a bit-banged I²C master, mcp4728 drives the converters
// and provisions their addresses, and mcp4728/mcp4728test simulates them on a
// virtual bus. cmd/dacbus is the command line front end.
package dacbus
