// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Modbus/TCP master driver. Every transaction opens a fresh TCP connection,
// runs as the configured slave id and closes the link again; connection
// reuse is intentionally absent so half-open state cannot accumulate.
package driver

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

const modbusDefaultTimeout = 3 * time.Second

func init() {
	Register(models.StatuteModbus, NewModbusDriver)
}

// connectFunc opens one transaction-scoped client. Swappable in tests.
type connectFunc func() (modbus.Client, func() error, error)

// ModbusDriver is the reference TCP-master driver.
type ModbusDriver struct {
	channelID uint32
	address   string
	slaveID   byte
	timeout   time.Duration
	cache     *registerCache
	connect   connectFunc
	poller    *modbusPoller
}

// NewModbusDriver builds the driver from channel arguments:
// address (required), port (default 502), slave_id (default 1),
// timeout_ms (default 3000) and the merged auto_call specs.
func NewModbusDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	host, err := requireStringArg(args, "address")
	if err != nil {
		return nil, err
	}
	port := intArg(args, "port", 502)
	timeout := time.Duration(intArg(args, "timeout_ms", int(modbusDefaultTimeout/time.Millisecond))) * time.Millisecond

	d := &ModbusDriver{
		channelID: channelID,
		address:   fmt.Sprintf("%s:%d", host, port),
		slaveID:   byte(intArg(args, "slave_id", 1)),
		timeout:   timeout,
		cache:     newRegisterCache(),
	}
	d.connect = d.dialTCP

	specs, err := autoPollSpecs(args)
	if err != nil {
		return nil, err
	}
	if len(specs) > 0 {
		d.poller = newModbusPoller(d, specs)
		if err := d.poller.start(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *ModbusDriver) Name() string { return models.StatuteModbus }

func (d *ModbusDriver) dialTCP() (modbus.Client, func() error, error) {
	handler := modbus.NewTCPClientHandler(d.address)
	handler.Timeout = d.timeout
	handler.SlaveId = d.slaveID
	if err := handler.Connect(); err != nil {
		return nil, nil, mapModbusError(errors.Wrapf(err, "connecting to %s", d.address))
	}
	return modbus.NewClient(handler), handler.Close, nil
}

// transact runs fn inside one fresh connection.
func (d *ModbusDriver) transact(fn func(modbus.Client) error) error {
	client, closer, err := d.connect()
	if err != nil {
		return err
	}
	defer closer()
	return fn(client)
}

// Read treats the device id as a holding-register address.
func (d *ModbusDriver) Read(deviceID uint32) (int32, error) {
	v, _, err := d.readTyped(uint16(deviceID), TypeUint16, false)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// Write treats the device id as a single-register address.
func (d *ModbusDriver) Write(deviceID uint32, value int32) error {
	return d.writeTyped(uint16(deviceID), TypeUint16, float64(value))
}

type modbusTypedRequest struct {
	Addr     uint16  `json:"addr"`
	Type     string  `json:"type,omitempty"`
	Value    float64 `json:"value,omitempty"`
	UseCache bool    `json:"use_cache,omitempty"`
}

type modbusRawRequest struct {
	Addr  uint16   `json:"addr"`
	Count uint16   `json:"count,omitempty"`
	Value uint16   `json:"value,omitempty"`
	Data  []uint16 `json:"data,omitempty"`
}

// Execute dispatches the driver's command surface.
func (d *ModbusDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "read", "read_typed":
		var req modbusTypedRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		dt, err := ParseDataType(req.Type)
		if err != nil {
			return nil, err
		}
		value, fromCache, err := d.readTyped(req.Addr, dt, req.UseCache)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success", "value": value, "from_cache": fromCache}, nil

	case "write", "write_typed":
		var req modbusTypedRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		dt, err := ParseDataType(req.Type)
		if err != nil {
			return nil, err
		}
		if err := d.writeTyped(req.Addr, dt, req.Value); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil

	case "read_holding_registers":
		return d.rawRegisterRead(params, func(c modbus.Client, addr, count uint16) ([]byte, error) {
			return c.ReadHoldingRegisters(addr, count)
		})
	case "read_input_registers":
		return d.rawRegisterRead(params, func(c modbus.Client, addr, count uint16) ([]byte, error) {
			return c.ReadInputRegisters(addr, count)
		})
	case "read_coils":
		return d.rawBitRead(params, func(c modbus.Client, addr, count uint16) ([]byte, error) {
			return c.ReadCoils(addr, count)
		})
	case "read_discrete_inputs":
		return d.rawBitRead(params, func(c modbus.Client, addr, count uint16) ([]byte, error) {
			return c.ReadDiscreteInputs(addr, count)
		})

	case "write_single_register":
		var req modbusRawRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		err := d.transact(func(c modbus.Client) error {
			_, err := c.WriteSingleRegister(req.Addr, req.Value)
			return mapModbusError(err)
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil

	case "write_multiple_registers":
		var req modbusRawRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		err := d.transact(func(c modbus.Client) error {
			_, err := c.WriteMultipleRegisters(req.Addr, uint16(len(req.Data)), packRegisters(req.Data))
			return mapModbusError(err)
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil

	case "write_single_coil":
		var req modbusRawRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		coil := uint16(0x0000)
		if req.Value != 0 {
			coil = 0xFF00
		}
		err := d.transact(func(c modbus.Client) error {
			_, err := c.WriteSingleCoil(req.Addr, coil)
			return mapModbusError(err)
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil

	case "write_multiple_coils":
		var req modbusRawRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		err := d.transact(func(c modbus.Client) error {
			_, err := c.WriteMultipleCoils(req.Addr, uint16(len(req.Data)), packBits(req.Data))
			return mapModbusError(err)
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil

	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown modbus command %q", command)
	}
}

func (d *ModbusDriver) rawRegisterRead(params map[string]interface{},
	read func(modbus.Client, uint16, uint16) ([]byte, error)) (map[string]interface{}, error) {

	var req modbusRawRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	if req.Count == 0 {
		req.Count = 1
	}
	var regs []uint16
	err := d.transact(func(c modbus.Client) error {
		raw, err := read(c, req.Addr, req.Count)
		if err != nil {
			return mapModbusError(err)
		}
		regs = unpackRegisters(raw, req.Count)
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.cache.StoreBlock(req.Addr, regs, cacheTagRegister)
	return map[string]interface{}{"status": "success", "registers": regs}, nil
}

func (d *ModbusDriver) rawBitRead(params map[string]interface{},
	read func(modbus.Client, uint16, uint16) ([]byte, error)) (map[string]interface{}, error) {

	var req modbusRawRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	if req.Count == 0 {
		req.Count = 1
	}
	var bits []uint16
	err := d.transact(func(c modbus.Client) error {
		raw, err := read(c, req.Addr, req.Count)
		if err != nil {
			return mapModbusError(err)
		}
		bits = unpackBits(raw, req.Count)
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.cache.StoreBlock(req.Addr, bits, cacheTagCoil)
	return map[string]interface{}{"status": "success", "registers": bits}, nil
}

// readTyped is the cache-first typed read path.
func (d *ModbusDriver) readTyped(addr uint16, dt DataType, useCache bool) (float64, bool, error) {
	if useCache {
		if v, ok := d.cache.ReadTyped(addr, dt); ok {
			return v, true, nil
		}
	}

	var value float64
	err := d.transact(func(c modbus.Client) error {
		if dt.IsCoil() {
			raw, err := c.ReadCoils(addr, 1)
			if err != nil {
				return mapModbusError(err)
			}
			bits := unpackBits(raw, 1)
			d.cache.StoreBlock(addr, bits, cacheTagCoil)
			value = float64(bits[0])
			return nil
		}
		count := dt.RegisterCount()
		raw, err := c.ReadHoldingRegisters(addr, count)
		if err != nil {
			return mapModbusError(err)
		}
		regs := unpackRegisters(raw, count)
		d.cache.StoreBlock(addr, regs, cacheTagRegister)
		value, err = dt.Decode(regs)
		return err
	})
	if err != nil {
		return 0, false, err
	}
	return value, false, nil
}

// writeTyped chooses the function code by target and length: 0x05 for
// coils, 0x06 for single registers, 0x10 for multi-register types.
func (d *ModbusDriver) writeTyped(addr uint16, dt DataType, value float64) error {
	return d.transact(func(c modbus.Client) error {
		if dt.IsCoil() {
			coil := uint16(0x0000)
			if value != 0 {
				coil = 0xFF00
			}
			_, err := c.WriteSingleCoil(addr, coil)
			return mapModbusError(err)
		}
		regs, err := dt.Encode(value)
		if err != nil {
			return err
		}
		if len(regs) == 1 {
			_, err = c.WriteSingleRegister(addr, regs[0])
		} else {
			_, err = c.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs))
		}
		return mapModbusError(err)
	})
}

// GetStatus probes the device with a short dial and reports driver
// diagnostics.
func (d *ModbusDriver) GetStatus() (map[string]interface{}, error) {
	status := map[string]interface{}{
		"protocol":         models.StatuteModbus,
		"address":          d.address,
		"slave_id":         d.slaveID,
		"cached_registers": d.cache.Len(),
	}
	conn, err := net.DialTimeout("tcp", d.address, d.timeout)
	if err != nil {
		status["connected"] = false
		status["error"] = err.Error()
		return status, nil
	}
	conn.Close()
	status["connected"] = true
	return status, nil
}

func (d *ModbusDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	return nil, errUnsupportedMethod(models.StatuteModbus, name)
}

func (d *ModbusDriver) GetMethods() []string { return nil }

// mapModbusError classifies goburrow errors into the shared taxonomy.
func mapModbusError(err error) error {
	if err == nil {
		return nil
	}
	if mbErr, ok := errors.Cause(err).(*modbus.ModbusError); ok {
		return common.WrapError(common.KindProtocolError, err,
			fmt.Sprintf("modbus exception %d", mbErr.ExceptionCode))
	}
	if netErr, ok := errors.Cause(err).(net.Error); ok {
		if netErr.Timeout() {
			return common.WrapError(common.KindTimeout, err, "modbus i/o timeout")
		}
		return common.WrapError(common.KindConnectionError, err, "modbus transport failure")
	}
	return common.WrapError(common.KindProtocolError, err, "modbus transaction failed")
}

// Register payload helpers: goburrow exchanges big-endian byte slices.

func packRegisters(regs []uint16) []byte {
	out := make([]byte, 2*len(regs))
	for i, r := range regs {
		binary.BigEndian.PutUint16(out[2*i:], r)
	}
	return out
}

func unpackRegisters(raw []byte, count uint16) []uint16 {
	regs := make([]uint16, 0, count)
	for i := 0; i+1 < len(raw) && uint16(len(regs)) < count; i += 2 {
		regs = append(regs, binary.BigEndian.Uint16(raw[i:]))
	}
	return regs
}

func unpackBits(raw []byte, count uint16) []uint16 {
	bits := make([]uint16, count)
	for i := uint16(0); i < count; i++ {
		if int(i/8) < len(raw) && raw[i/8]&(1<<(i%8)) != 0 {
			bits[i] = 1
		}
	}
	return bits
}

func packBits(bits []uint16) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b != 0 {
			out[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return out
}
