// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Custom rule-based driver: channel arguments declare a table of write
// rules, each binding an integer value to a hex payload and an optional
// expected reply. Covers one-off devices whose vendor protocol is a handful
// of fixed frames.
package driver

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteCustom, NewCustomDriver)
}

type customRule struct {
	Value  int32  `json:"value"`
	Send   string `json:"send"`
	Expect string `json:"expect,omitempty"`
}

type CustomDriver struct {
	channelID uint32
	address   string
	timeout   time.Duration
	rules     []customRule
	lastValue map[uint32]int32
}

func NewCustomDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	host, err := requireStringArg(args, "address")
	if err != nil {
		return nil, err
	}
	port := intArg(args, "port", 0)
	if port == 0 {
		return nil, common.NewAppError(common.KindConfigError, "custom driver needs a port")
	}

	var cfg struct {
		Rules []customRule `json:"rules"`
	}
	if err := decodeParams(args, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Rules) == 0 {
		return nil, common.NewAppError(common.KindConfigError, "custom driver needs at least one rule")
	}
	for _, r := range cfg.Rules {
		if _, err := hex.DecodeString(r.Send); err != nil {
			return nil, common.WrapError(common.KindConfigError, err, fmt.Sprintf("bad send payload for value %d", r.Value))
		}
		if r.Expect != "" {
			if _, err := hex.DecodeString(r.Expect); err != nil {
				return nil, common.WrapError(common.KindConfigError, err, fmt.Sprintf("bad expect payload for value %d", r.Value))
			}
		}
	}

	return &CustomDriver{
		channelID: channelID,
		address:   fmt.Sprintf("%s:%d", host, port),
		timeout:   time.Duration(intArg(args, "timeout_ms", 3000)) * time.Millisecond,
		rules:     cfg.Rules,
		lastValue: make(map[uint32]int32),
	}, nil
}

func (d *CustomDriver) Name() string { return models.StatuteCustom }

// Read returns the last value successfully written; the devices behind this
// driver have no query path.
func (d *CustomDriver) Read(deviceID uint32) (int32, error) {
	v, ok := d.lastValue[deviceID]
	if !ok {
		return 0, common.NewAppErrorf(common.KindOther, "no value written to device %d yet", deviceID)
	}
	return v, nil
}

func (d *CustomDriver) Write(deviceID uint32, value int32) error {
	for _, rule := range d.rules {
		if rule.Value != value {
			continue
		}
		if err := d.apply(rule); err != nil {
			return err
		}
		d.lastValue[deviceID] = value
		return nil
	}
	return common.NewAppErrorf(common.KindConfigError, "no rule for value %d", value)
}

func (d *CustomDriver) apply(rule customRule) error {
	payload, _ := hex.DecodeString(rule.Send)
	reply, err := tcpTransact(d.address, d.timeout, payload, rule.Expect != "")
	if err != nil {
		return err
	}
	if rule.Expect != "" {
		expected, _ := hex.DecodeString(rule.Expect)
		if !bytes.Contains(reply, expected) {
			return common.NewAppErrorf(common.KindProtocolError,
				"device replied % x, expected % x", reply, expected)
		}
	}
	return nil
}

func (d *CustomDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "send_raw":
		payload, err := hex.DecodeString(stringArg(params, "hex", ""))
		if err != nil {
			return nil, common.WrapError(common.KindConfigError, err, "bad hex payload")
		}
		reply, err := tcpTransact(d.address, d.timeout, payload, boolArg(params, "expect_reply", false))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success", "data": hex.EncodeToString(reply)}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown custom command %q", command)
	}
}

func (d *CustomDriver) GetStatus() (map[string]interface{}, error) {
	return map[string]interface{}{
		"protocol": models.StatuteCustom,
		"address":  d.address,
		"rules":    len(d.rules),
	}, nil
}

func (d *CustomDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteCustom, name)
}

func (d *CustomDriver) GetMethods() []string { return nil }
