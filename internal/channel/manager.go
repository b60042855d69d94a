// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Package channel owns the enabled protocol drivers and serializes access
// to each of them. At most one protocol transaction is in flight per
// channel; different channels proceed in parallel.
package channel

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/lspcsoft/device-controller/internal/bus"
	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/internal/driver"
	"github.com/lspcsoft/device-controller/pkg/models"
)

// managedChannel pairs a driver with its exclusive lock. Driver code may
// assume no concurrent calls on the same instance.
type managedChannel struct {
	mu     sync.Mutex
	config models.ChannelConfig
	driver models.ProtocolDriver
}

// Manager holds the constructed channels. The map is written only during
// construction and read-only afterwards.
type Manager struct {
	mu       sync.RWMutex
	channels map[uint32]*managedChannel
	events   *bus.EventBus
}

// NewManager builds a driver for every enabled channel config, merging any
// auto_call specs into the driver arguments. A per-channel construction
// failure is logged and skipped, never fatal.
func NewManager(configs []models.ChannelConfig, events *bus.EventBus) *Manager {
	m := &Manager{
		channels: make(map[uint32]*managedChannel),
		events:   events,
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			common.LoggingClient.Debug(fmt.Sprintf("channel %d disabled, skipping", cfg.ChannelID))
			continue
		}
		args, err := decodeArguments(cfg)
		if err != nil {
			common.LoggingClient.Error(fmt.Sprintf("channel %d: bad arguments: %v", cfg.ChannelID, err))
			continue
		}
		drv, err := driver.New(cfg.Statute, cfg.ChannelID, args)
		if err != nil {
			common.LoggingClient.Error(fmt.Sprintf("channel %d: constructing %s driver failed: %v",
				cfg.ChannelID, cfg.Statute, err))
			continue
		}
		m.channels[cfg.ChannelID] = &managedChannel{config: cfg, driver: drv}
		common.LoggingClient.Info(fmt.Sprintf("channel %d: %s driver ready", cfg.ChannelID, cfg.Statute))
		if events != nil {
			events.Publish(models.NewChannelConnected(cfg.ChannelID))
		}
	}
	return m
}

// decodeArguments unpacks the config's raw arguments and merges the
// auto_call specs under the "auto_call" key.
func decodeArguments(cfg models.ChannelConfig) (map[string]interface{}, error) {
	args := make(map[string]interface{})
	if len(cfg.Arguments) > 0 {
		if err := json.Unmarshal(cfg.Arguments, &args); err != nil {
			return nil, common.WrapError(common.KindConfigError, err, "decoding channel arguments")
		}
	}
	if len(cfg.AutoCall) > 0 {
		args["auto_call"] = cfg.AutoCall
	}
	return args, nil
}

func (m *Manager) channel(channelID uint32) (*managedChannel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.channels[channelID]
	if !ok {
		return nil, common.NewAppErrorf(common.KindChannelNotFound, "channel %d not found", channelID)
	}
	return mc, nil
}

// Has reports whether the channel was constructed.
func (m *Manager) Has(channelID uint32) bool {
	_, err := m.channel(channelID)
	return err == nil
}

// Write performs a scalar write on the channel's driver.
func (m *Manager) Write(channelID, deviceID uint32, value int32) error {
	mc, err := m.channel(channelID)
	if err != nil {
		return err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.driver.Write(deviceID, value)
}

// Read performs a scalar read on the channel's driver.
func (m *Manager) Read(channelID, deviceID uint32) (int32, error) {
	mc, err := m.channel(channelID)
	if err != nil {
		return 0, err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.driver.Read(deviceID)
}

// Execute runs a driver-specific command.
func (m *Manager) Execute(channelID uint32, command string, params map[string]interface{}) (map[string]interface{}, error) {
	mc, err := m.channel(channelID)
	if err != nil {
		return nil, err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.driver.Execute(command, params)
}

// CallMethod invokes a named driver method.
func (m *Manager) CallMethod(channelID uint32, name string, args map[string]interface{}) (map[string]interface{}, error) {
	mc, err := m.channel(channelID)
	if err != nil {
		return nil, err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.driver.CallMethod(name, args)
}

// GetMethods lists the channel's methods: the driver's built-ins plus any
// declared in the channel config.
func (m *Manager) GetMethods(channelID uint32) ([]string, error) {
	mc, err := m.channel(channelID)
	if err != nil {
		return nil, err
	}
	mc.mu.Lock()
	methods := mc.driver.GetMethods()
	mc.mu.Unlock()

	seen := make(map[string]bool, len(methods))
	for _, name := range methods {
		seen[name] = true
	}
	for _, def := range mc.config.Methods {
		if !seen[def.Name] {
			methods = append(methods, def.Name)
			seen[def.Name] = true
		}
	}
	return methods, nil
}

// GetAllStatus collects every channel's driver status. Per-channel failures
// are reported inline as error strings and published as ChannelDisconnected.
func (m *Manager) GetAllStatus() map[uint32]map[string]interface{} {
	m.mu.RLock()
	ids := make([]uint32, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make(map[uint32]map[string]interface{}, len(ids))
	for _, id := range ids {
		mc, err := m.channel(id)
		if err != nil {
			continue
		}
		mc.mu.Lock()
		status, err := mc.driver.GetStatus()
		mc.mu.Unlock()
		if err != nil {
			common.LoggingClient.Warn(fmt.Sprintf("channel %d: status probe failed: %v", id, err))
			if m.events != nil {
				m.events.Publish(models.NewChannelDisconnected(id, err.Error()))
			}
			status = map[string]interface{}{"error": err.Error()}
		}
		out[id] = status
	}
	return out
}

// ChannelIDs lists the constructed channel ids.
func (m *Manager) ChannelIDs() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint32, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	return ids
}
