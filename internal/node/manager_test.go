// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspcsoft/device-controller/internal/bus"
	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func testConfigs() []models.NodeConfig {
	return []models.NodeConfig{
		{GlobalID: 10, ChannelID: 1, DeviceID: 1, Alias: "projector"},
		{GlobalID: 20, ChannelID: 1, DeviceID: 2, Alias: "screen"},
		{GlobalID: 30, ChannelID: 2, DeviceID: 1, Category: "power"},
	}
}

func TestManagerLookups(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	assert.Equal(t, 3, m.NodeCount())

	cfg, err := m.GetNode(10)
	require.NoError(t, err)
	assert.Equal(t, "projector", cfg.Alias)

	_, err = m.GetNode(99)
	require.Error(t, err)
	assert.Equal(t, common.KindDeviceNotFound, common.KindOf(err))

	id, err := m.FindGlobalID(2, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), id)

	_, err = m.FindGlobalID(2, 9)
	assert.Equal(t, common.KindDeviceNotFound, common.KindOf(err))
}

func TestStateStartsOfflineAndUnknown(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	state, err := m.GetState(10)
	require.NoError(t, err)
	assert.Nil(t, state.CurrentValue)
	assert.False(t, state.Online)
	assert.Nil(t, state.LastUpdate)
}

func TestUpdateValueEmitsEventOnlyOnChange(t *testing.T) {
	events := bus.New(8)
	ch, cancel := events.Subscribe()
	defer cancel()

	m := NewManager(testConfigs(), events)

	require.NoError(t, m.UpdateValue(10, 5))
	evt := <-ch
	assert.Equal(t, models.EventNodeStateChanged, evt.Type)
	assert.Equal(t, uint32(10), evt.GlobalID)
	assert.Equal(t, int32(0), evt.OldValue)
	assert.Equal(t, int32(5), evt.NewValue)

	// Same value again: state refreshes but no event.
	require.NoError(t, m.UpdateValue(10, 5))
	assert.Len(t, ch, 0)

	require.NoError(t, m.UpdateValue(10, 6))
	evt = <-ch
	assert.Equal(t, int32(5), evt.OldValue)
	assert.Equal(t, int32(6), evt.NewValue)
}

func TestFirstUpdateToZeroEmitsNoEvent(t *testing.T) {
	events := bus.New(8)
	ch, cancel := events.Subscribe()
	defer cancel()

	m := NewManager(testConfigs(), events)
	require.NoError(t, m.UpdateValue(10, 0))

	assert.Len(t, ch, 0)
	state, err := m.GetState(10)
	require.NoError(t, err)
	require.NotNil(t, state.CurrentValue)
	assert.Equal(t, int32(0), *state.CurrentValue)
	assert.True(t, state.Online)
}

func TestUpdateValueMarksOnlineAndTimestamps(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	require.NoError(t, m.UpdateValue(20, 1))

	state, err := m.GetState(20)
	require.NoError(t, err)
	assert.True(t, state.Online)
	require.NotNil(t, state.LastUpdate)

	require.NoError(t, m.SetOnline(20, false))
	state, err = m.GetState(20)
	require.NoError(t, err)
	assert.False(t, state.Online)
	require.NotNil(t, state.CurrentValue)
	assert.Equal(t, int32(1), *state.CurrentValue)
}

func TestGetStateReturnsACopy(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	require.NoError(t, m.UpdateValue(10, 5))

	state, err := m.GetState(10)
	require.NoError(t, err)
	*state.CurrentValue = 99

	again, err := m.GetState(10)
	require.NoError(t, err)
	assert.Equal(t, int32(5), *again.CurrentValue)
}

func TestGetAllStates(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	states := m.GetAllStates()
	assert.Len(t, states, 3)
}
