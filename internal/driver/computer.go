// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// computerControl driver: powers PCs on with Wake-on-LAN magic packets,
// powers them off through a UDP agent command, and tracks liveness from a
// UDP heartbeat the agent emits.
package driver

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteComputerControl, NewComputerDriver)
}

const heartbeatFreshness = 15 * time.Second

type computerEndpoint struct {
	MAC     string `json:"mac"`
	Address string `json:"address"`
}

type ComputerDriver struct {
	channelID uint32
	broadcast string
	agentPort int
	endpoints map[uint32]computerEndpoint

	hbMu       sync.Mutex
	lastBeat   map[uint32]time.Time
	listenOnce sync.Once
	listenErr  error
	listenPort int
}

// NewComputerDriver builds the driver from channel arguments: broadcast
// (default 255.255.255.255), agent_port (default 9099), heartbeat_port
// (default 9100) and computers, a map of device id -> {mac, address}.
func NewComputerDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	d := &ComputerDriver{
		channelID:  channelID,
		broadcast:  stringArg(args, "broadcast", "255.255.255.255"),
		agentPort:  intArg(args, "agent_port", 9099),
		listenPort: intArg(args, "heartbeat_port", 9100),
		endpoints:  make(map[uint32]computerEndpoint),
		lastBeat:   make(map[uint32]time.Time),
	}

	var cfg struct {
		Computers map[uint32]computerEndpoint `json:"computers"`
	}
	if err := decodeParams(args, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Computers) == 0 {
		return nil, common.NewAppError(common.KindConfigError, "computerControl needs a computers map")
	}
	for id, ep := range cfg.Computers {
		if _, err := net.ParseMAC(ep.MAC); err != nil {
			return nil, common.WrapError(common.KindConfigError, err, fmt.Sprintf("bad MAC for computer %d", id))
		}
		d.endpoints[id] = ep
	}
	return d, nil
}

func (d *ComputerDriver) Name() string { return models.StatuteComputerControl }

func (d *ComputerDriver) endpoint(deviceID uint32) (computerEndpoint, error) {
	ep, ok := d.endpoints[deviceID]
	if !ok {
		return computerEndpoint{}, common.NewAppErrorf(common.KindDeviceNotFound, "computer %d not configured", deviceID)
	}
	return ep, nil
}

// wake broadcasts the magic packet: 6 x 0xFF followed by the MAC 16 times.
func (d *ComputerDriver) wake(ep computerEndpoint) error {
	mac, err := net.ParseMAC(ep.MAC)
	if err != nil {
		return common.WrapError(common.KindConfigError, err, "bad MAC")
	}
	packet := make([]byte, 0, 102)
	packet = append(packet, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
	for i := 0; i < 16; i++ {
		packet = append(packet, mac...)
	}
	return udpSend(fmt.Sprintf("%s:9", d.broadcast), packet)
}

// shutdown asks the on-host agent to power down.
func (d *ComputerDriver) shutdown(ep computerEndpoint) error {
	return udpSend(fmt.Sprintf("%s:%d", ep.Address, d.agentPort), []byte("SHUTDOWN\n"))
}

// ensureHeartbeatListener lazily starts the UDP loop that receives agent
// heartbeats of the form "HB <device_id>".
func (d *ComputerDriver) ensureHeartbeatListener() error {
	d.listenOnce.Do(func() {
		addr := net.UDPAddr{Port: d.listenPort}
		conn, err := net.ListenUDP("udp", &addr)
		if err != nil {
			d.listenErr = common.WrapError(common.KindConnectionError, err,
				fmt.Sprintf("binding heartbeat port %d", d.listenPort))
			return
		}
		go d.heartbeatLoop(conn)
	})
	return d.listenErr
}

func (d *ComputerDriver) heartbeatLoop(conn *net.UDPConn) {
	buf := make([]byte, 64)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			common.LoggingClient.Warn(fmt.Sprintf("channel %d: heartbeat listener stopped: %v", d.channelID, err))
			return
		}
		var id uint32
		if _, err := fmt.Sscanf(strings.TrimSpace(string(buf[:n])), "HB %d", &id); err != nil {
			continue
		}
		d.hbMu.Lock()
		d.lastBeat[id] = time.Now()
		d.hbMu.Unlock()
	}
}

// Read reports 1 while the computer's heartbeat is fresh, else 0.
func (d *ComputerDriver) Read(deviceID uint32) (int32, error) {
	if _, err := d.endpoint(deviceID); err != nil {
		return 0, err
	}
	if err := d.ensureHeartbeatListener(); err != nil {
		return 0, err
	}
	d.hbMu.Lock()
	last, ok := d.lastBeat[deviceID]
	d.hbMu.Unlock()
	if ok && time.Since(last) < heartbeatFreshness {
		return 1, nil
	}
	return 0, nil
}

// Write powers the computer: non-zero wakes, zero shuts down.
func (d *ComputerDriver) Write(deviceID uint32, value int32) error {
	ep, err := d.endpoint(deviceID)
	if err != nil {
		return err
	}
	if value != 0 {
		return d.wake(ep)
	}
	return d.shutdown(ep)
}

func (d *ComputerDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "wake":
		id := uint32(intArg(params, "device_id", 0))
		ep, err := d.endpoint(id)
		if err != nil {
			return nil, err
		}
		if err := d.wake(ep); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	case "shutdown":
		id := uint32(intArg(params, "device_id", 0))
		ep, err := d.endpoint(id)
		if err != nil {
			return nil, err
		}
		if err := d.shutdown(ep); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	case "send_raw":
		payload, err := hex.DecodeString(stringArg(params, "hex", ""))
		if err != nil {
			return nil, common.WrapError(common.KindConfigError, err, "bad hex payload")
		}
		id := uint32(intArg(params, "device_id", 0))
		ep, err := d.endpoint(id)
		if err != nil {
			return nil, err
		}
		if err := udpSend(fmt.Sprintf("%s:%d", ep.Address, d.agentPort), payload); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown computerControl command %q", command)
	}
}

func (d *ComputerDriver) GetStatus() (map[string]interface{}, error) {
	d.hbMu.Lock()
	defer d.hbMu.Unlock()
	online := 0
	for _, last := range d.lastBeat {
		if time.Since(last) < heartbeatFreshness {
			online++
		}
	}
	return map[string]interface{}{
		"protocol":  models.StatuteComputerControl,
		"computers": len(d.endpoints),
		"online":    online,
	}, nil
}

func (d *ComputerDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteComputerControl, name)
}

func (d *ComputerDriver) GetMethods() []string { return nil }
