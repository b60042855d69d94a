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

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func u32(v uint32) *uint32 { return &v }
func i32(v int32) *int32   { return &v }
func b(v bool) *bool       { return &v }

// recordingWriter captures fulfillment writes and mirrors them into the
// node manager, the way the controller does.
type recordingWriter struct {
	nodes  *Manager
	writes [][3]int64
	fail   error
}

func (w *recordingWriter) ExecuteWrite(channelID, deviceID uint32, value int32) error {
	if w.fail != nil {
		return w.fail
	}
	w.writes = append(w.writes, [3]int64{int64(channelID), int64(deviceID), int64(value)})
	if id, err := w.nodes.FindGlobalID(channelID, deviceID); err == nil {
		return w.nodes.UpdateValue(id, value)
	}
	return nil
}

func TestCheckValuePredicate(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	r := NewResolver(m)
	deps := []models.Dependency{{ID: u32(10), Value: i32(1)}}

	// Never-touched node fails the value predicate.
	met, err := r.Check(deps)
	require.NoError(t, err)
	assert.False(t, met)

	require.NoError(t, m.UpdateValue(10, 1))
	met, err = r.Check(deps)
	require.NoError(t, err)
	assert.True(t, met)

	require.NoError(t, m.UpdateValue(10, 2))
	met, err = r.Check(deps)
	require.NoError(t, err)
	assert.False(t, met)
}

func TestCheckStatusPredicate(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	r := NewResolver(m)
	deps := []models.Dependency{{ID: u32(20), Status: b(true)}}

	met, err := r.Check(deps)
	require.NoError(t, err)
	assert.False(t, met)

	require.NoError(t, m.UpdateValue(20, 0))
	met, err = r.Check(deps)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestCheckANDsAllPredicates(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	r := NewResolver(m)
	deps := []models.Dependency{
		{ID: u32(10), Value: i32(1)},
		{ID: u32(20), Value: i32(2)},
	}

	require.NoError(t, m.UpdateValue(10, 1))
	met, err := r.Check(deps)
	require.NoError(t, err)
	assert.False(t, met, "one met predicate is not enough")

	require.NoError(t, m.UpdateValue(20, 2))
	met, err = r.Check(deps)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestCheckCombinedValueAndStatus(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	r := NewResolver(m)
	deps := []models.Dependency{{ID: u32(10), Value: i32(3), Status: b(true)}}

	require.NoError(t, m.UpdateValue(10, 3))
	require.NoError(t, m.SetOnline(10, false))
	met, err := r.Check(deps)
	require.NoError(t, err)
	assert.False(t, met, "value holds but status does not")
}

func TestCheckResolvesEndpointAddressing(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	r := NewResolver(m)

	// (channel 2, device 1) is node 30.
	deps := []models.Dependency{{ChannelID: u32(2), ID: u32(1), Value: i32(7)}}
	require.NoError(t, m.UpdateValue(30, 7))

	met, err := r.Check(deps)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestCheckUnknownTargets(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	r := NewResolver(m)

	_, err := r.Check([]models.Dependency{{ID: u32(99), Value: i32(1)}})
	require.Error(t, err)
	assert.Equal(t, common.KindDeviceNotFound, common.KindOf(err))

	_, err = r.Check([]models.Dependency{{Value: i32(1)}})
	require.Error(t, err)
	assert.Equal(t, common.KindConfigError, common.KindOf(err))
}

func TestFulfillDrivesUnmetValuePredicates(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	r := NewResolver(m)
	w := &recordingWriter{nodes: m}

	require.NoError(t, m.UpdateValue(20, 2)) // already at target
	deps := []models.Dependency{
		{ID: u32(10), Value: i32(1)},
		{ID: u32(20), Value: i32(2)},
		{ID: u32(30), Status: b(true)}, // status-only, never written
	}

	require.NoError(t, r.Fulfill(deps, w))

	// Only node 10 needed a write.
	require.Len(t, w.writes, 1)
	assert.Equal(t, [3]int64{1, 1, 1}, w.writes[0])

	met, err := r.Check(deps[:2])
	require.NoError(t, err)
	assert.True(t, met)
}

func TestFulfillWrapsWriteFailure(t *testing.T) {
	m := NewManager(testConfigs(), nil)
	r := NewResolver(m)
	w := &recordingWriter{nodes: m, fail: common.NewAppError(common.KindConnectionError, "link down")}

	err := r.Fulfill([]models.Dependency{{ID: u32(10), Value: i32(1)}}, w)
	require.Error(t, err)
	assert.Equal(t, common.KindDependencyNotMet, common.KindOf(err))
}
