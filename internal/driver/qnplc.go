// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// qn-smart-plc driver: QN PLC relay boards. Binary frames over TCP; relay
// number is the device id.
package driver

import (
	"fmt"
	"time"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteQNSmartPLC, NewQNSmartPLCDriver)
}

type QNSmartPLCDriver struct {
	channelID uint32
	address   string
	timeout   time.Duration
}

func NewQNSmartPLCDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	host, err := requireStringArg(args, "address")
	if err != nil {
		return nil, err
	}
	return &QNSmartPLCDriver{
		channelID: channelID,
		address:   fmt.Sprintf("%s:%d", host, intArg(args, "port", 8080)),
		timeout:   time.Duration(intArg(args, "timeout_ms", 3000)) * time.Millisecond,
	}, nil
}

func (d *QNSmartPLCDriver) Name() string { return models.StatuteQNSmartPLC }

// qnFrame builds the relay command: header, relay, action, xor checksum.
func qnFrame(relay byte, action byte) []byte {
	frame := []byte{0x48, 0x3A, relay, action}
	var x byte
	for _, b := range frame {
		x ^= b
	}
	return append(frame, x, 0x45, 0x44)
}

func (d *QNSmartPLCDriver) Read(deviceID uint32) (int32, error) {
	reply, err := tcpTransact(d.address, d.timeout, qnFrame(byte(deviceID), 0x03), true)
	if err != nil {
		return 0, err
	}
	if len(reply) < 4 || reply[0] != 0x48 {
		return 0, common.NewAppErrorf(common.KindProtocolError, "malformed qn-plc reply % x", reply)
	}
	if reply[3] == 0x01 {
		return 1, nil
	}
	return 0, nil
}

func (d *QNSmartPLCDriver) Write(deviceID uint32, value int32) error {
	action := byte(0x02)
	if value != 0 {
		action = 0x01
	}
	_, err := tcpTransact(d.address, d.timeout, qnFrame(byte(deviceID), action), false)
	return err
}

func (d *QNSmartPLCDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "pulse":
		// Close the relay, hold, reopen. Used for momentary screen-lift
		// contacts.
		relay := uint32(intArg(params, "relay", 0))
		holdMs := intArg(params, "hold_ms", 500)
		if err := d.Write(relay, 1); err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(holdMs) * time.Millisecond)
		if err := d.Write(relay, 0); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown qn-smart-plc command %q", command)
	}
}

func (d *QNSmartPLCDriver) GetStatus() (map[string]interface{}, error) {
	return map[string]interface{}{
		"protocol": models.StatuteQNSmartPLC,
		"address":  d.address,
	}, nil
}

func (d *QNSmartPLCDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteQNSmartPLC, name)
}

func (d *QNSmartPLCDriver) GetMethods() []string { return nil }
