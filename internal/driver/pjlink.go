// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// PJLink class-1 projector driver. One TCP session per command: read the
// authentication banner, answer the challenge when security is on, send the
// command line, parse the single-line response.
package driver

import (
	"crypto/md5"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatutePJLink, NewPJLinkDriver)
}

type PJLinkDriver struct {
	channelID uint32
	address   string
	password  string
	timeout   time.Duration
}

func NewPJLinkDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	host, err := requireStringArg(args, "address")
	if err != nil {
		return nil, err
	}
	port := intArg(args, "port", 4352)
	return &PJLinkDriver{
		channelID: channelID,
		address:   fmt.Sprintf("%s:%d", host, port),
		password:  stringArg(args, "password", ""),
		timeout:   time.Duration(intArg(args, "timeout_ms", 3000)) * time.Millisecond,
	}, nil
}

func (d *PJLinkDriver) Name() string { return models.StatutePJLink }

// command runs one PJLink exchange, e.g. command("POWR", "1").
func (d *PJLinkDriver) command(cmd, param string) (string, error) {
	conn, err := net.DialTimeout("tcp", d.address, d.timeout)
	if err != nil {
		return "", common.WrapError(common.KindConnectionError, err, fmt.Sprintf("connecting to projector %s", d.address))
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
		return "", common.WrapError(common.KindIo, err, "setting projector deadline")
	}

	banner := make([]byte, 128)
	n, err := conn.Read(banner)
	if err != nil {
		return "", mapLinkError(err, d.address)
	}
	prefix, err := d.authPrefix(strings.TrimSpace(string(banner[:n])))
	if err != nil {
		return "", err
	}

	line := fmt.Sprintf("%s%%1%s %s\r", prefix, cmd, param)
	if _, err := conn.Write([]byte(line)); err != nil {
		return "", mapLinkError(err, d.address)
	}

	reply := make([]byte, 128)
	n, err = conn.Read(reply)
	if err != nil {
		return "", mapLinkError(err, d.address)
	}
	return d.parseReply(cmd, strings.TrimSpace(string(reply[:n])))
}

// authPrefix answers the PJLINK banner: "PJLINK 0" needs nothing, "PJLINK 1
// <seed>" needs md5(seed+password) prepended to the first command.
func (d *PJLinkDriver) authPrefix(banner string) (string, error) {
	switch {
	case strings.HasPrefix(banner, "PJLINK 0"):
		return "", nil
	case strings.HasPrefix(banner, "PJLINK 1 "):
		seed := strings.TrimPrefix(banner, "PJLINK 1 ")
		if d.password == "" {
			return "", common.NewAppError(common.KindConfigError, "projector requires a password")
		}
		sum := md5.Sum([]byte(seed + d.password))
		return fmt.Sprintf("%x", sum), nil
	default:
		return "", common.NewAppErrorf(common.KindProtocolError, "unexpected PJLink banner %q", banner)
	}
}

func (d *PJLinkDriver) parseReply(cmd, reply string) (string, error) {
	if strings.Contains(reply, "PJLINK ERRA") {
		return "", common.NewAppError(common.KindProtocolError, "projector rejected authentication")
	}
	idx := strings.Index(reply, "=")
	if idx < 0 || !strings.Contains(reply, cmd) {
		return "", common.NewAppErrorf(common.KindProtocolError, "malformed PJLink reply %q", reply)
	}
	result := reply[idx+1:]
	if strings.HasPrefix(result, "ERR") {
		return "", common.NewAppErrorf(common.KindProtocolError, "projector error %s for %s", result, cmd)
	}
	return result, nil
}

// Read returns the projector power state (0 off, 1 on, 2 cooling, 3 warming).
func (d *PJLinkDriver) Read(deviceID uint32) (int32, error) {
	result, err := d.command("POWR", "?")
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(result)
	if err != nil {
		return 0, common.NewAppErrorf(common.KindProtocolError, "non-numeric power state %q", result)
	}
	return int32(v), nil
}

// Write switches power: 0 off, anything else on.
func (d *PJLinkDriver) Write(deviceID uint32, value int32) error {
	param := "0"
	if value != 0 {
		param = "1"
	}
	_, err := d.command("POWR", param)
	return err
}

func (d *PJLinkDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "power":
		result, err := d.command("POWR", stringArg(params, "param", "?"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success", "data": result}, nil
	case "input":
		result, err := d.command("INPT", stringArg(params, "param", "?"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success", "data": result}, nil
	case "mute":
		result, err := d.command("AVMT", stringArg(params, "param", "?"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success", "data": result}, nil
	case "lamp":
		result, err := d.command("LAMP", "?")
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success", "data": result}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown pjlink command %q", command)
	}
}

func (d *PJLinkDriver) GetStatus() (map[string]interface{}, error) {
	status := map[string]interface{}{"protocol": models.StatutePJLink, "address": d.address}
	power, err := d.Read(0)
	if err != nil {
		status["connected"] = false
		status["error"] = err.Error()
		return status, nil
	}
	status["connected"] = true
	status["power"] = power
	return status, nil
}

func (d *PJLinkDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatutePJLink, name)
}

func (d *PJLinkDriver) GetMethods() []string { return nil }
