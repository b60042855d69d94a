// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// modbus-slave driver: the controller as the passive side of a Modbus/TCP
// link. A remote master (typically a venue PLC) writes into this register
// table; node reads and writes address the same table locally. Supports
// function codes 0x03, 0x06 and 0x10.
package driver

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteModbusSlave, NewModbusSlaveDriver)
}

type ModbusSlaveDriver struct {
	channelID uint32
	listen    string
	unitID    byte

	mu    sync.RWMutex
	regs  map[uint16]uint16
	conns uint64

	startOnce sync.Once
	startErr  error
}

func NewModbusSlaveDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	d := &ModbusSlaveDriver{
		channelID: channelID,
		listen:    fmt.Sprintf("%s:%d", stringArg(args, "bind", "0.0.0.0"), intArg(args, "port", 502)),
		unitID:    byte(intArg(args, "unit_id", 1)),
		regs:      make(map[uint16]uint16),
	}
	if err := d.start(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *ModbusSlaveDriver) start() error {
	d.startOnce.Do(func() {
		ln, err := net.Listen("tcp", d.listen)
		if err != nil {
			d.startErr = common.WrapError(common.KindConnectionError, err,
				fmt.Sprintf("binding modbus slave on %s", d.listen))
			return
		}
		go d.acceptLoop(ln)
	})
	return d.startErr
}

func (d *ModbusSlaveDriver) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			common.LoggingClient.Warn(fmt.Sprintf("channel %d: modbus slave listener stopped: %v", d.channelID, err))
			return
		}
		d.mu.Lock()
		d.conns++
		d.mu.Unlock()
		go d.serve(conn)
	}
}

// serve handles one master connection: MBAP header framing, then the PDU.
func (d *ModbusSlaveDriver) serve(conn net.Conn) {
	defer conn.Close()
	header := make([]byte, 7)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint16(header[4:6])
		if length < 2 || length > 256 {
			return
		}
		pdu := make([]byte, length-1)
		if _, err := io.ReadFull(conn, pdu); err != nil {
			return
		}
		response := d.handlePDU(pdu)
		out := make([]byte, 7+len(response))
		copy(out, header[:4])
		binary.BigEndian.PutUint16(out[4:6], uint16(len(response)+1))
		out[6] = header[6]
		copy(out[7:], response)
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

func (d *ModbusSlaveDriver) handlePDU(pdu []byte) []byte {
	if len(pdu) < 1 {
		return nil
	}
	fc := pdu[0]
	exception := func(code byte) []byte { return []byte{fc | 0x80, code} }

	switch fc {
	case 0x03:
		if len(pdu) < 5 {
			return exception(0x03)
		}
		addr := binary.BigEndian.Uint16(pdu[1:3])
		count := binary.BigEndian.Uint16(pdu[3:5])
		if count == 0 || count > 125 {
			return exception(0x03)
		}
		out := make([]byte, 2+2*count)
		out[0], out[1] = fc, byte(2*count)
		d.mu.RLock()
		for i := uint16(0); i < count; i++ {
			binary.BigEndian.PutUint16(out[2+2*i:], d.regs[addr+i])
		}
		d.mu.RUnlock()
		return out

	case 0x06:
		if len(pdu) < 5 {
			return exception(0x03)
		}
		addr := binary.BigEndian.Uint16(pdu[1:3])
		value := binary.BigEndian.Uint16(pdu[3:5])
		d.mu.Lock()
		d.regs[addr] = value
		d.mu.Unlock()
		return pdu[:5]

	case 0x10:
		if len(pdu) < 6 {
			return exception(0x03)
		}
		addr := binary.BigEndian.Uint16(pdu[1:3])
		count := binary.BigEndian.Uint16(pdu[3:5])
		byteCount := int(pdu[5])
		if len(pdu) < 6+byteCount || byteCount != int(count)*2 {
			return exception(0x03)
		}
		d.mu.Lock()
		for i := uint16(0); i < count; i++ {
			d.regs[addr+i] = binary.BigEndian.Uint16(pdu[6+2*i:])
		}
		d.mu.Unlock()
		return pdu[:5]

	default:
		return exception(0x01)
	}
}

func (d *ModbusSlaveDriver) Name() string { return models.StatuteModbusSlave }

func (d *ModbusSlaveDriver) Read(deviceID uint32) (int32, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return int32(d.regs[uint16(deviceID)]), nil
}

func (d *ModbusSlaveDriver) Write(deviceID uint32, value int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[uint16(deviceID)] = uint16(value)
	return nil
}

func (d *ModbusSlaveDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "dump":
		d.mu.RLock()
		defer d.mu.RUnlock()
		out := make(map[string]interface{}, len(d.regs))
		for addr, v := range d.regs {
			out[fmt.Sprintf("%d", addr)] = v
		}
		return map[string]interface{}{"status": "success", "data": out}, nil
	case "clear":
		d.mu.Lock()
		d.regs = make(map[uint16]uint16)
		d.mu.Unlock()
		return map[string]interface{}{"status": "success"}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown modbus-slave command %q", command)
	}
}

func (d *ModbusSlaveDriver) GetStatus() (map[string]interface{}, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return map[string]interface{}{
		"protocol":    models.StatuteModbusSlave,
		"listen":      d.listen,
		"registers":   len(d.regs),
		"connections": d.conns,
	}, nil
}

func (d *ModbusSlaveDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteModbusSlave, name)
}

func (d *ModbusSlaveDriver) GetMethods() []string { return nil }
