// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Novastar LED controller driver. Loads saved display scenes over TCP (or a
// serial-to-TCP bridge). Operator values are 1-based scene numbers; the
// controller itself indexes scenes from 0, so Write sends value-1
// uniformly.
package driver

import (
	"fmt"
	"time"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteNovastar, NewNovastarDriver)
}

type NovastarDriver struct {
	channelID uint32
	address   string
	timeout   time.Duration
	lastScene map[uint32]int32
}

func NewNovastarDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	host, err := requireStringArg(args, "address")
	if err != nil {
		return nil, err
	}
	return &NovastarDriver{
		channelID: channelID,
		address:   fmt.Sprintf("%s:%d", host, intArg(args, "port", 5200)),
		timeout:   time.Duration(intArg(args, "timeout_ms", 3000)) * time.Millisecond,
		lastScene: make(map[uint32]int32),
	}, nil
}

func (d *NovastarDriver) Name() string { return models.StatuteNovastar }

// sceneFrame builds the vendor load-scene packet with its additive
// checksum.
func sceneFrame(screen byte, scene byte) []byte {
	payload := []byte{0x55, 0xAA, 0x00, screen, 0x01, scene}
	var sum uint16
	for _, b := range payload {
		sum += uint16(b)
	}
	return append(payload, byte(sum>>8), byte(sum))
}

// Write loads the scene value on the screen addressed by deviceID. Scene
// indices on the wire are value-1.
func (d *NovastarDriver) Write(deviceID uint32, value int32) error {
	if value < 1 {
		return common.NewAppErrorf(common.KindConfigError, "scene number %d must be >= 1", value)
	}
	reply, err := tcpTransact(d.address, d.timeout, sceneFrame(byte(deviceID), byte(value-1)), true)
	if err != nil {
		return err
	}
	if len(reply) < 3 || reply[0] != 0x55 || reply[1] != 0xAA {
		return common.NewAppErrorf(common.KindProtocolError, "malformed novastar reply % x", reply)
	}
	if reply[2] != 0x00 {
		return common.NewAppErrorf(common.KindProtocolError, "novastar rejected scene load, code %d", reply[2])
	}
	d.lastScene[deviceID] = value
	return nil
}

// Read returns the last scene loaded through this controller; the device
// has no scene query.
func (d *NovastarDriver) Read(deviceID uint32) (int32, error) {
	v, ok := d.lastScene[deviceID]
	if !ok {
		return 0, common.NewAppErrorf(common.KindOther, "no scene loaded on screen %d yet", deviceID)
	}
	return v, nil
}

func (d *NovastarDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "load_scene":
		screen := uint32(intArg(params, "screen", 0))
		scene := int32(intArg(params, "scene", 0))
		if err := d.Write(screen, scene); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	case "brightness":
		level := intArg(params, "level", -1)
		if level < 0 || level > 255 {
			return nil, common.NewAppErrorf(common.KindConfigError, "brightness %d out of [0,255]", level)
		}
		frame := []byte{0x55, 0xAA, 0x01, 0x00, 0x01, byte(level)}
		var sum uint16
		for _, b := range frame {
			sum += uint16(b)
		}
		frame = append(frame, byte(sum>>8), byte(sum))
		if _, err := tcpTransact(d.address, d.timeout, frame, false); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown novastar command %q", command)
	}
}

func (d *NovastarDriver) GetStatus() (map[string]interface{}, error) {
	return map[string]interface{}{
		"protocol": models.StatuteNovastar,
		"address":  d.address,
	}, nil
}

func (d *NovastarDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteNovastar, name)
}

func (d *NovastarDriver) GetMethods() []string { return nil }
