// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// xinkeQ1 video matrix driver. ASCII command set over TCP; routing an input
// to an output is "<in>V<out>." and the matrix echoes the command on
// success.
package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteXinkeQ1, NewXinkeQ1Driver)
}

type XinkeQ1Driver struct {
	channelID uint32
	address   string
	timeout   time.Duration
	routes    map[uint32]int32
}

func NewXinkeQ1Driver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	host, err := requireStringArg(args, "address")
	if err != nil {
		return nil, err
	}
	return &XinkeQ1Driver{
		channelID: channelID,
		address:   fmt.Sprintf("%s:%d", host, intArg(args, "port", 4001)),
		timeout:   time.Duration(intArg(args, "timeout_ms", 3000)) * time.Millisecond,
		routes:    make(map[uint32]int32),
	}, nil
}

func (d *XinkeQ1Driver) Name() string { return models.StatuteXinkeQ1 }

func (d *XinkeQ1Driver) send(command string) (string, error) {
	reply, err := tcpTransact(d.address, d.timeout, []byte(command), true)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(reply))
	if strings.Contains(text, "ERR") {
		return "", common.NewAppErrorf(common.KindProtocolError, "matrix rejected %q: %s", command, text)
	}
	return text, nil
}

// Write routes input value to output deviceID.
func (d *XinkeQ1Driver) Write(deviceID uint32, value int32) error {
	if value < 1 {
		return common.NewAppErrorf(common.KindConfigError, "input number %d must be >= 1", value)
	}
	if _, err := d.send(fmt.Sprintf("%dV%d.", value, deviceID)); err != nil {
		return err
	}
	d.routes[deviceID] = value
	return nil
}

// Read returns the input currently routed to output deviceID, as tracked
// by this controller.
func (d *XinkeQ1Driver) Read(deviceID uint32) (int32, error) {
	v, ok := d.routes[deviceID]
	if !ok {
		return 0, common.NewAppErrorf(common.KindOther, "no route set for output %d yet", deviceID)
	}
	return v, nil
}

func (d *XinkeQ1Driver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "route":
		in := intArg(params, "input", 0)
		out := intArg(params, "output", 0)
		if err := d.Write(uint32(out), int32(in)); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	case "all":
		// Route one input to every output: "<in>All."
		in := intArg(params, "input", 0)
		if _, err := d.send(fmt.Sprintf("%dAll.", in)); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	case "raw":
		text, err := d.send(stringArg(params, "command", ""))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success", "data": text}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown xinkeQ1 command %q", command)
	}
}

func (d *XinkeQ1Driver) GetStatus() (map[string]interface{}, error) {
	return map[string]interface{}{
		"protocol": models.StatuteXinkeQ1,
		"address":  d.address,
		"routes":   len(d.routes),
	}, nil
}

func (d *XinkeQ1Driver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteXinkeQ1, name)
}

func (d *XinkeQ1Driver) GetMethods() []string { return nil }
