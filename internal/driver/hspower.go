// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// hs-power-sequencer driver: HS sequencers on an RS-232/485 line. Each
// outlet is one device id; frames are a fixed 6-byte vendor format with an
// additive checksum. The serial port is opened per transaction, mirroring
// the Modbus connection policy.
package driver

import (
	"fmt"
	"time"

	"github.com/goburrow/serial"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteHSPowerSequencer, NewHSPowerDriver)
}

type HSPowerDriver struct {
	channelID uint32
	config    serial.Config
	state     map[uint32]int32
}

func NewHSPowerDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	device, err := requireStringArg(args, "device")
	if err != nil {
		return nil, err
	}
	return &HSPowerDriver{
		channelID: channelID,
		config: serial.Config{
			Address:  device,
			BaudRate: intArg(args, "baud_rate", 9600),
			DataBits: intArg(args, "data_bits", 8),
			StopBits: intArg(args, "stop_bits", 1),
			Parity:   stringArg(args, "parity", "N"),
			Timeout:  time.Duration(intArg(args, "timeout_ms", 3000)) * time.Millisecond,
		},
		state: make(map[uint32]int32),
	}, nil
}

func (d *HSPowerDriver) Name() string { return models.StatuteHSPowerSequencer }

// frame builds the 6-byte sequencer command: STX, outlet, action, 0x00,
// checksum, ETX. Action 0x01 switches on, 0x02 off, 0x03 queries.
func hsFrame(outlet byte, action byte) []byte {
	sum := byte(0xA0) + outlet + action
	return []byte{0xA0, outlet, action, 0x00, sum, 0x0D}
}

func (d *HSPowerDriver) transact(payload []byte, expectReply bool) ([]byte, error) {
	port, err := serial.Open(&d.config)
	if err != nil {
		return nil, common.WrapError(common.KindConnectionError, err,
			fmt.Sprintf("opening serial port %s", d.config.Address))
	}
	defer port.Close()

	if _, err := port.Write(payload); err != nil {
		return nil, common.WrapError(common.KindIo, err, "writing sequencer frame")
	}
	if !expectReply {
		return nil, nil
	}
	buf := make([]byte, 16)
	n, err := port.Read(buf)
	if err != nil {
		return nil, common.WrapError(common.KindTimeout, err, "reading sequencer reply")
	}
	return buf[:n], nil
}

// Read queries an outlet state: 1 on, 0 off.
func (d *HSPowerDriver) Read(deviceID uint32) (int32, error) {
	reply, err := d.transact(hsFrame(byte(deviceID), 0x03), true)
	if err != nil {
		return 0, err
	}
	if len(reply) < 3 || reply[0] != 0xA0 {
		return 0, common.NewAppErrorf(common.KindProtocolError, "malformed sequencer reply % x", reply)
	}
	if reply[2] == 0x01 {
		return 1, nil
	}
	return 0, nil
}

// Write switches an outlet: non-zero on, zero off.
func (d *HSPowerDriver) Write(deviceID uint32, value int32) error {
	action := byte(0x02)
	if value != 0 {
		action = 0x01
	}
	if _, err := d.transact(hsFrame(byte(deviceID), action), false); err != nil {
		return err
	}
	d.state[deviceID] = value
	return nil
}

func (d *HSPowerDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "all_on", "all_off":
		action := byte(0x02)
		if command == "all_on" {
			action = 0x01
		}
		// Outlet 0x00 addresses the whole sequencer.
		if _, err := d.transact(hsFrame(0x00, action), false); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown hs-power command %q", command)
	}
}

func (d *HSPowerDriver) GetStatus() (map[string]interface{}, error) {
	return map[string]interface{}{
		"protocol": models.StatuteHSPowerSequencer,
		"device":   d.config.Address,
		"baud":     d.config.BaudRate,
	}, nil
}

func (d *HSPowerDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteHSPowerSequencer, name)
}

func (d *HSPowerDriver) GetMethods() []string { return nil }
