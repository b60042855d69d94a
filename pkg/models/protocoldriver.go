// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// This file defines the interface every protocol driver implements. It is
// the abstraction layer between the channel manager and the device or
// protocol specific logic of each driver family.
package models

// ProtocolDriver is the low-level device-specific interface used by the
// channel manager to interact with one physical link.
//
// The manager holds a per-channel exclusive lock around every call, so a
// driver may assume no concurrent calls on the same instance. Blocking
// operations (socket I/O, serial I/O, timers) are allowed and expected.
type ProtocolDriver interface {

	// Name returns the driver's protocol kind tag.
	Name() string

	// Read performs a simple scalar read from the addressed device.
	Read(deviceID uint32) (int32, error)

	// Write performs a simple scalar write to the addressed device.
	Write(deviceID uint32, value int32) error

	// Execute runs a driver-specific command with untyped JSON parameters.
	// Drivers validate params at this boundary and work on typed request
	// structs internally.
	Execute(command string, params map[string]interface{}) (map[string]interface{}, error)

	// GetStatus reports driver-specific liveness and diagnostics.
	GetStatus() (map[string]interface{}, error)

	// CallMethod invokes a named RPC declared by the channel config.
	// Drivers without methods return an unsupported-method error.
	CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error)

	// GetMethods lists the method names the driver declares.
	GetMethods() []string
}
