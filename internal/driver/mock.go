// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Mock driver: a persistent in-memory device with programmable latency and
// fault injection. It backs integration tests and site commissioning runs
// where real hardware is not wired yet.
package driver

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/lspcsoft/device-controller/internal/cache"
	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteMock, NewMockDriver)
}

const (
	mockStoreValuesKey = "values"
	mockStoreJSONKey   = "json"
)

// MockDriver holds a per-address int32 store plus a separate JSON key/value
// store. Both persist to <storage_dir>/channel_<id>.json so restarts are
// transparent.
type MockDriver struct {
	mu        sync.Mutex
	channelID uint32
	delay     time.Duration
	errorRate float64
	faulted   bool
	faultMsg  string
	values    map[string]int32
	jsonStore map[string]json.RawMessage
	store     *cache.ProtocolStore
	rng       *rand.Rand

	readCount  uint64
	writeCount uint64
	errorCount uint64
}

// NewMockDriver builds the driver from channel arguments: delay_ms,
// error_rate, storage_dir and an optional initial_values map of
// address -> value.
func NewMockDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	dir := stringArg(args, "storage_dir", common.MockStorageDir)
	store, err := cache.NewProtocolStore(dir, channelID)
	if err != nil {
		return nil, err
	}

	d := &MockDriver{
		channelID: channelID,
		delay:     time.Duration(intArg(args, "delay_ms", 0)) * time.Millisecond,
		errorRate: floatArg(args, "error_rate", 0),
		values:    make(map[string]int32),
		jsonStore: make(map[string]json.RawMessage),
		store:     store,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if _, err := store.Get(mockStoreValuesKey, &d.values); err != nil {
		return nil, err
	}
	if _, err := store.Get(mockStoreJSONKey, &d.jsonStore); err != nil {
		return nil, err
	}

	if init, ok := args["initial_values"].(map[string]interface{}); ok {
		for addr := range init {
			d.values[addr] = int32(floatArg(init, addr, 0))
		}
	}
	return d, nil
}

func (d *MockDriver) Name() string { return models.StatuteMock }

// simulate applies the configured delay, the sticky fault and the Bernoulli
// error injection, in that order. Callers hold d.mu.
func (d *MockDriver) simulate() error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.faulted {
		d.errorCount++
		return common.NewAppErrorf(common.KindOther, "mock channel %d faulted: %s", d.channelID, d.faultMsg)
	}
	if d.errorRate > 0 && d.rng.Float64() < d.errorRate {
		d.errorCount++
		return common.NewAppErrorf(common.KindConnectionError, "mock channel %d injected failure", d.channelID)
	}
	return nil
}

func (d *MockDriver) Read(deviceID uint32) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readCount++
	if err := d.simulate(); err != nil {
		return 0, err
	}
	return d.values[addrKey(deviceID)], nil
}

func (d *MockDriver) Write(deviceID uint32, value int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeCount++
	if err := d.simulate(); err != nil {
		return err
	}
	d.values[addrKey(deviceID)] = value
	return d.persistValues()
}

func (d *MockDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch command {
	case "ping":
		if err := d.simulate(); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success", "data": "pong"}, nil

	case "reset":
		d.values = make(map[string]int32)
		d.faulted = false
		d.errorRate = 0
		d.readCount, d.writeCount, d.errorCount = 0, 0, 0
		if err := d.persistValues(); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil

	case "set_error_rate":
		rate := floatArg(params, "rate", 0)
		if rate < 0 || rate > 1 {
			return nil, common.NewAppErrorf(common.KindConfigError, "error rate %v out of [0,1]", rate)
		}
		d.errorRate = rate
		return map[string]interface{}{"status": "success"}, nil

	case "get_all_values":
		values := make(map[string]interface{}, len(d.values))
		for k, v := range d.values {
			values[k] = v
		}
		return map[string]interface{}{"status": "success", "data": values}, nil

	case "batch_read":
		if err := d.simulate(); err != nil {
			return nil, err
		}
		var req struct {
			Addrs []uint32 `json:"addrs"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		out := make(map[string]interface{}, len(req.Addrs))
		for _, addr := range req.Addrs {
			out[addrKey(addr)] = d.values[addrKey(addr)]
		}
		d.readCount += uint64(len(req.Addrs))
		return map[string]interface{}{"status": "success", "data": out}, nil

	case "batch_write":
		if err := d.simulate(); err != nil {
			return nil, err
		}
		var req struct {
			Values map[string]int32 `json:"values"`
		}
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		for addr, v := range req.Values {
			d.values[addr] = v
		}
		d.writeCount += uint64(len(req.Values))
		if err := d.persistValues(); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil

	case "store_json":
		key, ok := params["key"].(string)
		if !ok {
			return nil, common.NewAppError(common.KindConfigError, "store_json needs a string key")
		}
		raw, err := json.Marshal(params["value"])
		if err != nil {
			return nil, common.WrapError(common.KindSerialization, err, "encoding store_json value")
		}
		d.jsonStore[key] = raw
		if err := d.persistJSON(); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil

	case "load_json":
		key, ok := params["key"].(string)
		if !ok {
			return nil, common.NewAppError(common.KindConfigError, "load_json needs a string key")
		}
		raw, ok := d.jsonStore[key]
		if !ok {
			return nil, common.NewAppErrorf(common.KindOther, "json key %q not found", key)
		}
		var value interface{}
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, common.WrapError(common.KindSerialization, err, "decoding stored json")
		}
		return map[string]interface{}{"status": "success", "value": value}, nil

	case "delete_json":
		key, ok := params["key"].(string)
		if !ok {
			return nil, common.NewAppError(common.KindConfigError, "delete_json needs a string key")
		}
		delete(d.jsonStore, key)
		if err := d.persistJSON(); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil

	case "get_all_json":
		out := make(map[string]interface{}, len(d.jsonStore))
		for k, raw := range d.jsonStore {
			var value interface{}
			if err := json.Unmarshal(raw, &value); err == nil {
				out[k] = value
			}
		}
		return map[string]interface{}{"status": "success", "data": out}, nil

	case "clear_json":
		d.jsonStore = make(map[string]json.RawMessage)
		if err := d.persistJSON(); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil

	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown mock command %q", command)
	}
}

// GetStatus fails while a sticky fault is active, like a dead device
// failing its status probe.
func (d *MockDriver) GetStatus() (map[string]interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.faulted {
		return nil, common.NewAppErrorf(common.KindConnectionError,
			"mock channel %d faulted: %s", d.channelID, d.faultMsg)
	}
	return map[string]interface{}{
		"protocol":    models.StatuteMock,
		"connected":   true,
		"error_rate":  d.errorRate,
		"delay_ms":    d.delay.Milliseconds(),
		"value_count": len(d.values),
	}, nil
}

func (d *MockDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch name {
	case "simulate_fault":
		d.faulted = true
		d.faultMsg = stringArg(args, "message", "simulated fault")
		return map[string]interface{}{"status": "success"}, nil

	case "clear_fault":
		d.faulted = false
		d.faultMsg = ""
		return map[string]interface{}{"status": "success"}, nil

	case "get_statistics":
		return map[string]interface{}{
			"status":      "success",
			"read_count":  d.readCount,
			"write_count": d.writeCount,
			"error_count": d.errorCount,
		}, nil

	case "set_delay":
		d.delay = time.Duration(intArg(args, "delay_ms", 0)) * time.Millisecond
		return map[string]interface{}{"status": "success"}, nil

	case "get_value":
		addr := uint32(intArg(args, "addr", 0))
		return map[string]interface{}{"status": "success", "value": d.values[addrKey(addr)]}, nil

	case "set_value":
		addr := uint32(intArg(args, "addr", 0))
		d.values[addrKey(addr)] = int32(intArg(args, "value", 0))
		if err := d.persistValues(); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil

	default:
		return nil, errUnsupportedMethod(models.StatuteMock, name)
	}
}

func (d *MockDriver) GetMethods() []string {
	return []string{"simulate_fault", "clear_fault", "get_statistics", "set_delay", "get_value", "set_value"}
}

func (d *MockDriver) persistValues() error {
	return d.store.Put(mockStoreValuesKey, d.values)
}

func (d *MockDriver) persistJSON() error {
	return d.store.Put(mockStoreJSONKey, d.jsonStore)
}

func addrKey(addr uint32) string {
	return fmt.Sprintf("%d", addr)
}
