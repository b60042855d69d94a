// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// yk-vap driver: YK voice/announcement panels. Short binary frames over
// TCP; the device id selects the zone.
package driver

import (
	"fmt"
	"time"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteYKVAP, NewYKVAPDriver)
}

type YKVAPDriver struct {
	channelID uint32
	address   string
	timeout   time.Duration
	volume    map[uint32]int32
}

func NewYKVAPDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	host, err := requireStringArg(args, "address")
	if err != nil {
		return nil, err
	}
	return &YKVAPDriver{
		channelID: channelID,
		address:   fmt.Sprintf("%s:%d", host, intArg(args, "port", 7000)),
		timeout:   time.Duration(intArg(args, "timeout_ms", 3000)) * time.Millisecond,
		volume:    make(map[uint32]int32),
	}, nil
}

func (d *YKVAPDriver) Name() string { return models.StatuteYKVAP }

func ykFrame(zone byte, op byte, arg byte) []byte {
	frame := []byte{0x7E, zone, op, arg}
	var sum byte
	for _, b := range frame {
		sum += b
	}
	return append(frame, sum, 0x7F)
}

// Write sets the zone volume (0 mutes).
func (d *YKVAPDriver) Write(deviceID uint32, value int32) error {
	if value < 0 || value > 100 {
		return common.NewAppErrorf(common.KindConfigError, "volume %d out of [0,100]", value)
	}
	if _, err := tcpTransact(d.address, d.timeout, ykFrame(byte(deviceID), 0x01, byte(value)), false); err != nil {
		return err
	}
	d.volume[deviceID] = value
	return nil
}

func (d *YKVAPDriver) Read(deviceID uint32) (int32, error) {
	v, ok := d.volume[deviceID]
	if !ok {
		return 0, common.NewAppErrorf(common.KindOther, "no volume set for zone %d yet", deviceID)
	}
	return v, nil
}

func (d *YKVAPDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "play":
		zone := byte(intArg(params, "zone", 0))
		track := byte(intArg(params, "track", 0))
		if _, err := tcpTransact(d.address, d.timeout, ykFrame(zone, 0x02, track), false); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	case "stop":
		zone := byte(intArg(params, "zone", 0))
		if _, err := tcpTransact(d.address, d.timeout, ykFrame(zone, 0x03, 0x00), false); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown yk-vap command %q", command)
	}
}

func (d *YKVAPDriver) GetStatus() (map[string]interface{}, error) {
	return map[string]interface{}{
		"protocol": models.StatuteYKVAP,
		"address":  d.address,
	}, nil
}

func (d *YKVAPDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteYKVAP, name)
}

func (d *YKVAPDriver) GetMethods() []string { return nil }
