// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package scene

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspcsoft/device-controller/internal/bus"
	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

// scriptedWriter records writes in order and can fail or stall on chosen
// nodes.
type scriptedWriter struct {
	mu      sync.Mutex
	writes  []uint32
	failOn  map[uint32]error
	stallOn map[uint32]time.Duration
}

func (w *scriptedWriter) WriteNode(globalID uint32, value int32) error {
	if d, ok := w.stallOn[globalID]; ok {
		time.Sleep(d)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, globalID)
	if err, ok := w.failOn[globalID]; ok {
		return err
	}
	return nil
}

func (w *scriptedWriter) order() []uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]uint32, len(w.writes))
	copy(out, w.writes)
	return out
}

func testScenes() []models.SceneConfig {
	return []models.SceneConfig{
		{Name: "open", Nodes: []models.SceneMember{
			{ID: 1, Value: 1},
			{ID: 2, Value: 1},
			{ID: 3, Value: 1},
		}},
		{Name: "close", Nodes: []models.SceneMember{
			{ID: 3, Value: 0},
			{ID: 1, Value: 0},
		}},
	}
}

func waitForIdle(t *testing.T, e *Executor) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if executing, _ := e.GetExecutionStatus(); !executing {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scene never finished")
}

func TestExecuteRunsMembersInOrder(t *testing.T) {
	events := bus.New(8)
	ch, cancel := events.Subscribe()
	defer cancel()

	e := NewExecutor(testScenes(), events)
	w := &scriptedWriter{}

	require.NoError(t, e.Execute("open", w))
	waitForIdle(t, e)
	assert.Equal(t, []uint32{1, 2, 3}, w.order())

	started := <-ch
	assert.Equal(t, models.EventSceneStarted, started.Type)
	assert.Equal(t, "open", started.Name)
	completed := <-ch
	assert.Equal(t, models.EventSceneCompleted, completed.Type)
	assert.True(t, completed.Success)
}

func TestExecuteUnknownScene(t *testing.T) {
	e := NewExecutor(testScenes(), nil)
	err := e.Execute("missing", &scriptedWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene 'missing' not found")
}

func TestSecondExecuteFailsWhileRunning(t *testing.T) {
	e := NewExecutor(testScenes(), nil)
	w := &scriptedWriter{stallOn: map[uint32]time.Duration{1: 200 * time.Millisecond}}

	require.NoError(t, e.Execute("open", w))

	err := e.Execute("close", &scriptedWriter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scene 'open' is executing")

	executing, name := e.GetExecutionStatus()
	assert.True(t, executing)
	assert.Equal(t, "open", name)

	waitForIdle(t, e)
	// Slot is free again afterwards.
	require.NoError(t, e.Execute("close", &scriptedWriter{}))
	waitForIdle(t, e)
}

func TestMemberFailureContinuesButFailsScene(t *testing.T) {
	events := bus.New(8)
	ch, cancel := events.Subscribe()
	defer cancel()

	e := NewExecutor(testScenes(), events)
	w := &scriptedWriter{failOn: map[uint32]error{
		2: common.NewAppError(common.KindTimeout, "no reply"),
	}}

	require.NoError(t, e.Execute("open", w))
	waitForIdle(t, e)

	// All members were attempted despite the failure in the middle.
	assert.Equal(t, []uint32{1, 2, 3}, w.order())

	<-ch // started
	completed := <-ch
	assert.Equal(t, models.EventSceneCompleted, completed.Type)
	assert.False(t, completed.Success)
}

func TestMemberDelayIsHonored(t *testing.T) {
	scenes := []models.SceneConfig{{Name: "slow", Nodes: []models.SceneMember{
		{ID: 1, Value: 1},
		{ID: 2, Value: 1, DelayMs: 120},
	}}}
	e := NewExecutor(scenes, nil)
	w := &scriptedWriter{}

	start := time.Now()
	require.NoError(t, e.Execute("slow", w))
	waitForIdle(t, e)

	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
	assert.Equal(t, []uint32{1, 2}, w.order())
}

func TestListAndGetScenes(t *testing.T) {
	e := NewExecutor(testScenes(), nil)

	names := make([]string, 0, 2)
	for _, sc := range e.ListScenes() {
		names = append(names, sc.Name)
	}
	assert.Equal(t, []string{"open", "close"}, names)

	sc, err := e.GetScene("close")
	require.NoError(t, err)
	assert.Len(t, sc.Nodes, 2)

	_, err = e.GetScene("nope")
	assert.Error(t, err)
}
