// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// tpris-pdu driver: TP-RIS rack PDUs with a line-oriented ASCII console.
// Outlet number is the device id; commands are "SW o<n> <on|off>\r\n".
package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteTprisPDU, NewTprisPDUDriver)
}

type TprisPDUDriver struct {
	channelID uint32
	address   string
	timeout   time.Duration
}

func NewTprisPDUDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	host, err := requireStringArg(args, "address")
	if err != nil {
		return nil, err
	}
	return &TprisPDUDriver{
		channelID: channelID,
		address:   fmt.Sprintf("%s:%d", host, intArg(args, "port", 23)),
		timeout:   time.Duration(intArg(args, "timeout_ms", 3000)) * time.Millisecond,
	}, nil
}

func (d *TprisPDUDriver) Name() string { return models.StatuteTprisPDU }

func (d *TprisPDUDriver) send(command string) (string, error) {
	reply, err := tcpTransact(d.address, d.timeout, []byte(command+"\r\n"), true)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(reply))
	if strings.Contains(strings.ToUpper(text), "ERROR") {
		return "", common.NewAppErrorf(common.KindProtocolError, "pdu rejected %q: %s", command, text)
	}
	return text, nil
}

// Read reports the outlet state: "STAT o<n>" answers "ON" or "OFF".
func (d *TprisPDUDriver) Read(deviceID uint32) (int32, error) {
	text, err := d.send(fmt.Sprintf("STAT o%d", deviceID))
	if err != nil {
		return 0, err
	}
	if strings.Contains(strings.ToUpper(text), "ON") {
		return 1, nil
	}
	return 0, nil
}

func (d *TprisPDUDriver) Write(deviceID uint32, value int32) error {
	state := "off"
	if value != 0 {
		state = "on"
	}
	_, err := d.send(fmt.Sprintf("SW o%d %s", deviceID, state))
	return err
}

func (d *TprisPDUDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "reboot_outlet":
		outlet := uint32(intArg(params, "outlet", 0))
		if _, err := d.send(fmt.Sprintf("SW o%d reboot", outlet)); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	case "current":
		text, err := d.send("METER amps")
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success", "data": text}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown tpris-pdu command %q", command)
	}
}

func (d *TprisPDUDriver) GetStatus() (map[string]interface{}, error) {
	return map[string]interface{}{
		"protocol": models.StatuteTprisPDU,
		"address":  d.address,
	}, nil
}

func (d *TprisPDUDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteTprisPDU, name)
}

func (d *TprisPDUDriver) GetMethods() []string { return nil }
