// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func newTestMock(t *testing.T) models.ProtocolDriver {
	t.Helper()
	d, err := NewMockDriver(1, map[string]interface{}{"storage_dir": t.TempDir()})
	require.NoError(t, err)
	return d
}

func TestMockReadBackWrite(t *testing.T) {
	d := newTestMock(t)

	require.NoError(t, d.Write(5, 42))
	v, err := d.Read(5)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	// Unwritten addresses read zero.
	v, err = d.Read(6)
	require.NoError(t, err)
	assert.Equal(t, int32(0), v)
}

func TestMockValuesSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	d, err := NewMockDriver(1, map[string]interface{}{"storage_dir": dir})
	require.NoError(t, err)
	require.NoError(t, d.Write(5, 42))

	reborn, err := NewMockDriver(1, map[string]interface{}{"storage_dir": dir})
	require.NoError(t, err)
	v, err := reborn.Read(5)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)
}

func TestMockErrorRateOneFailsEverything(t *testing.T) {
	dir := t.TempDir()
	d, err := NewMockDriver(1, map[string]interface{}{"storage_dir": dir, "error_rate": 1})
	require.NoError(t, err)

	_, err = d.Read(1)
	require.Error(t, err)
	assert.Equal(t, common.KindConnectionError, common.KindOf(err))
}

func TestMockStickyFault(t *testing.T) {
	d := newTestMock(t)

	_, err := d.CallMethod("simulate_fault", map[string]interface{}{"message": "power lost"})
	require.NoError(t, err)

	_, err = d.Read(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "power lost")

	// The status probe fails too while the fault holds.
	_, err = d.GetStatus()
	require.Error(t, err)
	assert.Equal(t, common.KindConnectionError, common.KindOf(err))

	_, err = d.CallMethod("clear_fault", nil)
	require.NoError(t, err)
	_, err = d.Read(1)
	assert.NoError(t, err)

	status, err := d.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, true, status["connected"])
}

func TestMockStatistics(t *testing.T) {
	d := newTestMock(t)

	require.NoError(t, d.Write(1, 1))
	_, err := d.Read(1)
	require.NoError(t, err)
	_, err = d.Read(2)
	require.NoError(t, err)

	stats, err := d.CallMethod("get_statistics", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats["read_count"])
	assert.Equal(t, uint64(1), stats["write_count"])
	assert.Equal(t, uint64(0), stats["error_count"])
}

func TestMockJSONStore(t *testing.T) {
	dir := t.TempDir()
	d, err := NewMockDriver(1, map[string]interface{}{"storage_dir": dir})
	require.NoError(t, err)

	_, err = d.Execute("store_json", map[string]interface{}{
		"key":   "layout",
		"value": map[string]interface{}{"rows": 4},
	})
	require.NoError(t, err)

	reborn, err := NewMockDriver(1, map[string]interface{}{"storage_dir": dir})
	require.NoError(t, err)
	result, err := reborn.Execute("load_json", map[string]interface{}{"key": "layout"})
	require.NoError(t, err)
	value := result["value"].(map[string]interface{})
	assert.Equal(t, float64(4), value["rows"])

	_, err = reborn.Execute("delete_json", map[string]interface{}{"key": "layout"})
	require.NoError(t, err)
	_, err = reborn.Execute("load_json", map[string]interface{}{"key": "layout"})
	assert.Error(t, err)
}

func TestMockBatchReadWrite(t *testing.T) {
	d := newTestMock(t)

	_, err := d.Execute("batch_write", map[string]interface{}{
		"values": map[string]interface{}{"1": 10, "2": 20},
	})
	require.NoError(t, err)

	result, err := d.Execute("batch_read", map[string]interface{}{
		"addrs": []interface{}{1, 2, 3},
	})
	require.NoError(t, err)
	data := result["data"].(map[string]interface{})
	assert.Equal(t, int32(10), data["1"])
	assert.Equal(t, int32(20), data["2"])
	assert.Equal(t, int32(0), data["3"])
}

func TestMockReset(t *testing.T) {
	d := newTestMock(t)

	require.NoError(t, d.Write(1, 99))
	_, err := d.Execute("set_error_rate", map[string]interface{}{"rate": 0.5})
	require.NoError(t, err)

	_, err = d.Execute("reset", nil)
	require.NoError(t, err)

	v, err := d.Read(1)
	require.NoError(t, err)
	assert.Equal(t, int32(0), v)

	status, err := d.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, float64(0), status["error_rate"])
}

func TestMockRejectsBadErrorRate(t *testing.T) {
	d := newTestMock(t)
	_, err := d.Execute("set_error_rate", map[string]interface{}{"rate": 1.5})
	require.Error(t, err)
	assert.Equal(t, common.KindConfigError, common.KindOf(err))
}
