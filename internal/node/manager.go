// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Package node holds the logical-device registry: immutable node configs,
// the mutable runtime state map and the dependency resolver over them.
package node

import (
	"sync"
	"time"

	"github.com/lspcsoft/device-controller/internal/bus"
	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

// Manager maps global ids to configs (immutable after load) and to runtime
// states.
type Manager struct {
	configs map[uint32]models.NodeConfig

	mu     sync.RWMutex
	states map[uint32]*models.NodeState

	// endpoint index: (channel_id, device_id) -> global_id
	endpoints map[endpointKey]uint32

	events *bus.EventBus
}

type endpointKey struct {
	channelID uint32
	deviceID  uint32
}

// NewManager indexes the configured nodes and seeds their runtime states.
func NewManager(configs []models.NodeConfig, events *bus.EventBus) *Manager {
	m := &Manager{
		configs:   make(map[uint32]models.NodeConfig, len(configs)),
		states:    make(map[uint32]*models.NodeState, len(configs)),
		endpoints: make(map[endpointKey]uint32, len(configs)),
		events:    events,
	}
	for _, cfg := range configs {
		m.configs[cfg.GlobalID] = cfg
		m.endpoints[endpointKey{cfg.ChannelID, cfg.DeviceID}] = cfg.GlobalID
		m.states[cfg.GlobalID] = &models.NodeState{
			GlobalID:  cfg.GlobalID,
			ChannelID: cfg.ChannelID,
			DeviceID:  cfg.DeviceID,
			Category:  cfg.Category,
			Alias:     cfg.Alias,
		}
	}
	return m
}

// GetNode returns the static config for a global id.
func (m *Manager) GetNode(globalID uint32) (models.NodeConfig, error) {
	cfg, ok := m.configs[globalID]
	if !ok {
		return models.NodeConfig{}, common.NewAppErrorf(common.KindDeviceNotFound, "node %d not found", globalID)
	}
	return cfg, nil
}

// GetState returns a copy of the node's runtime state.
func (m *Manager) GetState(globalID uint32) (models.NodeState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[globalID]
	if !ok {
		return models.NodeState{}, common.NewAppErrorf(common.KindDeviceNotFound, "node %d not found", globalID)
	}
	return copyState(state), nil
}

// GetAllStates snapshots every node state.
func (m *Manager) GetAllStates() []models.NodeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.NodeState, 0, len(m.states))
	for _, state := range m.states {
		out = append(out, copyState(state))
	}
	return out
}

// copyState detaches the pointer fields so callers cannot mutate the live
// state through a snapshot.
func copyState(state *models.NodeState) models.NodeState {
	out := *state
	if state.CurrentValue != nil {
		v := *state.CurrentValue
		out.CurrentValue = &v
	}
	if state.LastUpdate != nil {
		ts := *state.LastUpdate
		out.LastUpdate = &ts
	}
	return out
}

// FindGlobalID resolves a (channel_id, device_id) endpoint to its node.
func (m *Manager) FindGlobalID(channelID, deviceID uint32) (uint32, error) {
	id, ok := m.endpoints[endpointKey{channelID, deviceID}]
	if !ok {
		return 0, common.NewAppErrorf(common.KindDeviceNotFound,
			"no node bound to channel %d device %d", channelID, deviceID)
	}
	return id, nil
}

// UpdateValue records a successful read or write: the node goes online,
// LastUpdate moves, and a NodeStateChanged event fires when the value
// actually changed. A nil previous value compares as zero, so a first-ever
// update to 0 emits no event.
func (m *Manager) UpdateValue(globalID uint32, value int32) error {
	m.mu.Lock()
	state, ok := m.states[globalID]
	if !ok {
		m.mu.Unlock()
		return common.NewAppErrorf(common.KindDeviceNotFound, "node %d not found", globalID)
	}
	var old int32
	if state.CurrentValue != nil {
		old = *state.CurrentValue
	}
	now := time.Now()
	v := value
	state.CurrentValue = &v
	state.LastUpdate = &now
	state.Online = true
	m.mu.Unlock()

	if old != value && m.events != nil {
		m.events.Publish(models.NewNodeStateChanged(globalID, old, value))
	}
	return nil
}

// SetOnline flips the node's liveness flag without touching its value.
func (m *Manager) SetOnline(globalID uint32, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[globalID]
	if !ok {
		return common.NewAppErrorf(common.KindDeviceNotFound, "node %d not found", globalID)
	}
	state.Online = online
	return nil
}

// NodeCount reports the number of configured nodes.
func (m *Manager) NodeCount() int {
	return len(m.configs)
}
