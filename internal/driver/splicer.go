// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// splicer_3d driver: 3D video-wall splicers. Scene recall and layout
// switching over a small binary TCP protocol.
package driver

import (
	"fmt"
	"time"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteSplicer3D, NewSplicer3DDriver)
}

type Splicer3DDriver struct {
	channelID uint32
	address   string
	timeout   time.Duration
	lastScene map[uint32]int32
}

func NewSplicer3DDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	host, err := requireStringArg(args, "address")
	if err != nil {
		return nil, err
	}
	return &Splicer3DDriver{
		channelID: channelID,
		address:   fmt.Sprintf("%s:%d", host, intArg(args, "port", 9600)),
		timeout:   time.Duration(intArg(args, "timeout_ms", 3000)) * time.Millisecond,
		lastScene: make(map[uint32]int32),
	}, nil
}

func (d *Splicer3DDriver) Name() string { return models.StatuteSplicer3D }

func splicerFrame(unit byte, op byte, arg byte) []byte {
	frame := []byte{0xEB, 0x90, unit, op, arg}
	var sum byte
	for _, b := range frame {
		sum += b
	}
	return append(frame, sum)
}

// Write recalls scene value on the splicer unit addressed by deviceID.
func (d *Splicer3DDriver) Write(deviceID uint32, value int32) error {
	reply, err := tcpTransact(d.address, d.timeout, splicerFrame(byte(deviceID), 0x10, byte(value)), true)
	if err != nil {
		return err
	}
	if len(reply) < 4 || reply[0] != 0xEB || reply[3] != 0x00 {
		return common.NewAppErrorf(common.KindProtocolError, "splicer rejected scene %d: % x", value, reply)
	}
	d.lastScene[deviceID] = value
	return nil
}

func (d *Splicer3DDriver) Read(deviceID uint32) (int32, error) {
	v, ok := d.lastScene[deviceID]
	if !ok {
		return 0, common.NewAppErrorf(common.KindOther, "no scene recalled on unit %d yet", deviceID)
	}
	return v, nil
}

func (d *Splicer3DDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "set_3d":
		enable := byte(0x00)
		if boolArg(params, "enable", false) {
			enable = 0x01
		}
		unit := byte(intArg(params, "unit", 0))
		if _, err := tcpTransact(d.address, d.timeout, splicerFrame(unit, 0x20, enable), false); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown splicer_3d command %q", command)
	}
}

func (d *Splicer3DDriver) GetStatus() (map[string]interface{}, error) {
	return map[string]interface{}{
		"protocol": models.StatuteSplicer3D,
		"address":  d.address,
	}, nil
}

func (d *Splicer3DDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteSplicer3D, name)
}

func (d *Splicer3DDriver) GetMethods() []string { return nil }
