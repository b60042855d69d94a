// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspcsoft/device-controller/internal/bus"
	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func mockChannelConfig(t *testing.T, channelID uint32) models.ChannelConfig {
	t.Helper()
	args, err := json.Marshal(map[string]interface{}{"storage_dir": t.TempDir()})
	require.NoError(t, err)
	return models.ChannelConfig{
		ChannelID: channelID,
		Enabled:   true,
		Statute:   models.StatuteMock,
		Arguments: args,
	}
}

func TestManagerBuildsEnabledChannelsOnly(t *testing.T) {
	disabled := mockChannelConfig(t, 2)
	disabled.Enabled = false

	m := NewManager([]models.ChannelConfig{mockChannelConfig(t, 1), disabled}, nil)

	assert.True(t, m.Has(1))
	assert.False(t, m.Has(2))
	assert.Equal(t, []uint32{1}, m.ChannelIDs())
}

func TestManagerSkipsUnknownProtocolKind(t *testing.T) {
	bad := models.ChannelConfig{ChannelID: 3, Enabled: true, Statute: "telepathy"}
	m := NewManager([]models.ChannelConfig{bad, mockChannelConfig(t, 1)}, nil)

	// Construction failure loses the channel but not the manager.
	assert.False(t, m.Has(3))
	assert.True(t, m.Has(1))
}

func TestManagerPublishesChannelConnected(t *testing.T) {
	events := bus.New(8)
	ch, cancel := events.Subscribe()
	defer cancel()

	NewManager([]models.ChannelConfig{mockChannelConfig(t, 5)}, events)

	evt := <-ch
	assert.Equal(t, models.EventChannelConnected, evt.Type)
	assert.Equal(t, uint32(5), evt.ChannelID)
}

func TestManagerWriteReadExecute(t *testing.T) {
	m := NewManager([]models.ChannelConfig{mockChannelConfig(t, 1)}, nil)

	require.NoError(t, m.Write(1, 10, 42))
	v, err := m.Read(1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	result, err := m.Execute(1, "ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", result["data"])

	methods, err := m.GetMethods(1)
	require.NoError(t, err)
	assert.Contains(t, methods, "get_statistics")
}

func TestGetMethodsMergesConfigDeclarations(t *testing.T) {
	cfg := mockChannelConfig(t, 1)
	cfg.Methods = []models.MethodDef{
		{Name: "all_on", Description: "Power every output on."},
		{Name: "get_statistics"}, // already a driver built-in
	}
	m := NewManager([]models.ChannelConfig{cfg}, nil)

	methods, err := m.GetMethods(1)
	require.NoError(t, err)
	assert.Contains(t, methods, "all_on")

	count := 0
	for _, name := range methods {
		if name == "get_statistics" {
			count++
		}
	}
	assert.Equal(t, 1, count, "built-ins are not duplicated")
}

func TestManagerUnknownChannel(t *testing.T) {
	m := NewManager(nil, nil)

	err := m.Write(9, 1, 1)
	require.Error(t, err)
	assert.Equal(t, common.KindChannelNotFound, common.KindOf(err))

	_, err = m.Read(9, 1)
	assert.Equal(t, common.KindChannelNotFound, common.KindOf(err))
	_, err = m.Execute(9, "ping", nil)
	assert.Equal(t, common.KindChannelNotFound, common.KindOf(err))
	_, err = m.GetMethods(9)
	assert.Equal(t, common.KindChannelNotFound, common.KindOf(err))
}

func TestManagerGetAllStatus(t *testing.T) {
	m := NewManager([]models.ChannelConfig{
		mockChannelConfig(t, 1),
		mockChannelConfig(t, 2),
	}, nil)

	status := m.GetAllStatus()
	require.Len(t, status, 2)
	assert.Equal(t, models.StatuteMock, status[1]["protocol"])
	assert.Equal(t, true, status[2]["connected"])
}

func TestGetAllStatusPublishesChannelDisconnected(t *testing.T) {
	events := bus.New(8)
	ch, cancel := events.Subscribe()
	defer cancel()

	m := NewManager([]models.ChannelConfig{mockChannelConfig(t, 1)}, events)
	evt := <-ch
	require.Equal(t, models.EventChannelConnected, evt.Type)

	_, err := m.CallMethod(1, "simulate_fault", map[string]interface{}{"message": "psu tripped"})
	require.NoError(t, err)

	status := m.GetAllStatus()
	require.Contains(t, status[1], "error")
	assert.Contains(t, status[1]["error"], "psu tripped")

	evt = <-ch
	assert.Equal(t, models.EventChannelDisconnected, evt.Type)
	assert.Equal(t, uint32(1), evt.ChannelID)
	assert.Contains(t, evt.Reason, "psu tripped")
}

func TestManagerSerializesConcurrentWrites(t *testing.T) {
	m := NewManager([]models.ChannelConfig{mockChannelConfig(t, 1)}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.Write(1, uint32(i), int32(i)))
		}(i)
	}
	wg.Wait()

	stats, err := m.CallMethod(1, "get_statistics", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), stats["write_count"])

	for i := 0; i < 20; i++ {
		v, err := m.Read(1, uint32(i))
		require.NoError(t, err)
		assert.Equal(t, int32(i), v, fmt.Sprintf("device %d", i))
	}
}
