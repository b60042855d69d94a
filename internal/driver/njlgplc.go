// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// screen-njlg-plc driver: NJLG screen lifts behind a PLC speaking Modbus
// ASCII over TCP. Frames are ":AAFFRRRRVVVVLL\r\n" with an LRC trailer.
package driver

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteScreenNJLGPLC, NewNJLGPLCDriver)
}

type NJLGPLCDriver struct {
	channelID uint32
	address   string
	slaveID   byte
	timeout   time.Duration
}

func NewNJLGPLCDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	host, err := requireStringArg(args, "address")
	if err != nil {
		return nil, err
	}
	return &NJLGPLCDriver{
		channelID: channelID,
		address:   fmt.Sprintf("%s:%d", host, intArg(args, "port", 502)),
		slaveID:   byte(intArg(args, "slave_id", 1)),
		timeout:   time.Duration(intArg(args, "timeout_ms", 3000)) * time.Millisecond,
	}, nil
}

func (d *NJLGPLCDriver) Name() string { return models.StatuteScreenNJLGPLC }

// lrc is the Modbus ASCII longitudinal redundancy check.
func lrc(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return byte(-int8(sum))
}

// asciiFrame builds ":<hex payload><lrc>\r\n".
func asciiFrame(payload []byte) []byte {
	body := append(payload, lrc(payload))
	frame := strings.ToUpper(hex.EncodeToString(body))
	return []byte(":" + frame + "\r\n")
}

// parseAsciiReply strips the framing and verifies the LRC.
func parseAsciiReply(raw []byte) ([]byte, error) {
	text := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(text, ":") {
		return nil, common.NewAppErrorf(common.KindProtocolError, "malformed ascii frame %q", text)
	}
	body, err := hex.DecodeString(text[1:])
	if err != nil || len(body) < 2 {
		return nil, common.NewAppErrorf(common.KindProtocolError, "undecodable ascii frame %q", text)
	}
	payload, check := body[:len(body)-1], body[len(body)-1]
	if lrc(payload) != check {
		return nil, common.NewAppError(common.KindProtocolError, "ascii frame LRC mismatch")
	}
	// Exception responses set the high bit of the function code.
	if len(payload) >= 3 && payload[1]&0x80 != 0 {
		return nil, common.NewAppErrorf(common.KindProtocolError, "plc exception %d", payload[2])
	}
	return payload, nil
}

// Read queries one holding register (function 0x03) at the device address.
func (d *NJLGPLCDriver) Read(deviceID uint32) (int32, error) {
	addr := uint16(deviceID)
	request := []byte{d.slaveID, 0x03, byte(addr >> 8), byte(addr), 0x00, 0x01}
	raw, err := tcpTransact(d.address, d.timeout, asciiFrame(request), true)
	if err != nil {
		return 0, err
	}
	payload, err := parseAsciiReply(raw)
	if err != nil {
		return 0, err
	}
	if len(payload) < 5 {
		return 0, common.NewAppError(common.KindProtocolError, "short plc read reply")
	}
	return int32(uint16(payload[3])<<8 | uint16(payload[4])), nil
}

// Write sets one holding register (function 0x06) at the device address.
func (d *NJLGPLCDriver) Write(deviceID uint32, value int32) error {
	addr := uint16(deviceID)
	v := uint16(value)
	request := []byte{d.slaveID, 0x06, byte(addr >> 8), byte(addr), byte(v >> 8), byte(v)}
	raw, err := tcpTransact(d.address, d.timeout, asciiFrame(request), true)
	if err != nil {
		return err
	}
	_, err = parseAsciiReply(raw)
	return err
}

func (d *NJLGPLCDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "raise":
		if err := d.Write(uint32(intArg(params, "addr", 0)), 1); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	case "lower":
		if err := d.Write(uint32(intArg(params, "addr", 0)), 2); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	case "stop":
		if err := d.Write(uint32(intArg(params, "addr", 0)), 0); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown njlg-plc command %q", command)
	}
}

func (d *NJLGPLCDriver) GetStatus() (map[string]interface{}, error) {
	return map[string]interface{}{
		"protocol": models.StatuteScreenNJLGPLC,
		"address":  d.address,
		"slave_id": d.slaveID,
	}, nil
}

func (d *NJLGPLCDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteScreenNJLGPLC, name)
}

func (d *NJLGPLCDriver) GetMethods() []string { return nil }
