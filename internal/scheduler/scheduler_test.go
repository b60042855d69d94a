// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

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

// fakeChannels counts writes and optionally fails them.
type fakeChannels struct {
	mu     sync.Mutex
	writes [][3]int64
	fail   error
}

func (f *fakeChannels) Write(channelID, deviceID uint32, value int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.writes = append(f.writes, [3]int64{int64(channelID), int64(deviceID), int64(value)})
	return nil
}

func (f *fakeChannels) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// fakeResolver flips between met and unmet under test control.
type fakeResolver struct {
	mu  sync.Mutex
	met bool
	err error
}

func (f *fakeResolver) Check([]models.Dependency) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.met, f.err
}

func (f *fakeResolver) set(met bool) {
	f.mu.Lock()
	f.met = met
	f.mu.Unlock()
}

type fakeNodes struct {
	mu      sync.Mutex
	updates map[uint32]int32
}

func (f *fakeNodes) UpdateValue(globalID uint32, value int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = make(map[uint32]int32)
	}
	f.updates[globalID] = value
	return nil
}

func fastSettings(timeoutMs uint32) common.TaskSettings {
	return common.TaskSettings{TimeoutMs: timeoutMs, CheckIntervalMs: 10, MaxRetries: 3}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestTaskCompletesWhenDependenciesResolve(t *testing.T) {
	channels := &fakeChannels{}
	resolver := &fakeResolver{met: false}
	nodes := &fakeNodes{}
	events := bus.New(8)
	ch, cancel := events.Subscribe()
	defer cancel()

	s := New(fastSettings(5000), channels, resolver, nodes, events)
	defer s.Stop()

	task := s.Submit(models.NodeConfig{GlobalID: 10, ChannelID: 1, DeviceID: 2}, 7)
	assert.Equal(t, models.TaskPending, task.Status)

	// Unmet: the task stays queued and nothing is written.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, channels.writeCount())
	assert.Equal(t, 1, s.QueueLen())

	resolver.set(true)
	waitFor(t, func() bool { return s.QueueLen() == 0 }, "task never completed")

	require.Equal(t, 1, channels.writeCount())
	assert.Equal(t, [3]int64{1, 2, 7}, channels.writes[0])
	assert.Equal(t, int32(7), nodes.updates[10])

	evt := <-ch
	assert.Equal(t, models.EventTaskCompleted, evt.Type)
	assert.True(t, evt.Success)
	assert.Equal(t, task.ID, evt.TaskID)
}

func TestTaskTimesOut(t *testing.T) {
	channels := &fakeChannels{}
	resolver := &fakeResolver{met: false}
	events := bus.New(8)
	ch, cancel := events.Subscribe()
	defer cancel()

	s := New(fastSettings(50), channels, resolver, &fakeNodes{}, events)
	defer s.Stop()

	s.Submit(models.NodeConfig{GlobalID: 10}, 1)
	waitFor(t, func() bool { return s.QueueLen() == 0 }, "task never timed out")

	assert.Equal(t, 0, channels.writeCount())
	evt := <-ch
	assert.Equal(t, models.EventTaskCompleted, evt.Type)
	assert.False(t, evt.Success)
}

func TestTaskFailsAfterRetries(t *testing.T) {
	channels := &fakeChannels{fail: common.NewAppError(common.KindConnectionError, "link down")}
	resolver := &fakeResolver{met: true}
	events := bus.New(8)
	ch, cancel := events.Subscribe()
	defer cancel()

	s := New(fastSettings(60000), channels, resolver, &fakeNodes{}, events)
	defer s.Stop()

	s.Submit(models.NodeConfig{GlobalID: 10}, 1)
	waitFor(t, func() bool { return s.QueueLen() == 0 }, "task never gave up")

	evt := <-ch
	assert.Equal(t, models.EventTaskCompleted, evt.Type)
	assert.False(t, evt.Success)
}

func TestUnmetTaskDoesNotBlockLaterTasks(t *testing.T) {
	channels := &fakeChannels{}
	blocked := &fakeResolver{met: false}
	nodes := &fakeNodes{}

	s := New(fastSettings(60000), channels, blocked, nodes, nil)
	defer s.Stop()

	s.Submit(models.NodeConfig{GlobalID: 10, Depends: []models.Dependency{{}}}, 1)
	s.Submit(models.NodeConfig{GlobalID: 20, ChannelID: 2, DeviceID: 2}, 2)

	// Both tasks share the resolver here, so flip it and confirm both go.
	blocked.set(true)
	waitFor(t, func() bool { return s.QueueLen() == 0 }, "queue never drained")
	assert.Equal(t, 2, channels.writeCount())
}

func TestPendingSafeWhileTasksComplete(t *testing.T) {
	channels := &fakeChannels{}
	resolver := &fakeResolver{met: true}
	nodes := &fakeNodes{}

	s := New(fastSettings(60000), channels, resolver, nodes, nil)
	defer s.Stop()

	for i := 1; i <= 20; i++ {
		s.Submit(models.NodeConfig{GlobalID: uint32(i), ChannelID: 1, DeviceID: uint32(i)}, int32(i))
	}

	// Hammer the snapshot path while the loop executes and removes tasks.
	// Under the race detector this catches any unlocked task mutation.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s.QueueLen() > 0 {
			for _, task := range s.Pending() {
				_ = task.Status
				_ = task.RetryCount
			}
			time.Sleep(time.Millisecond)
		}
	}()

	waitFor(t, func() bool { return s.QueueLen() == 0 }, "queue never drained")
	<-done
	assert.Equal(t, 20, channels.writeCount())
}

func TestPendingSnapshot(t *testing.T) {
	s := New(fastSettings(60000), &fakeChannels{}, &fakeResolver{met: false}, &fakeNodes{}, nil)
	defer s.Stop()

	s.Submit(models.NodeConfig{GlobalID: 10}, 1)
	s.Submit(models.NodeConfig{GlobalID: 20}, 2)

	pending := s.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, uint32(10), pending[0].GlobalID)
	assert.Equal(t, uint32(20), pending[1].GlobalID)
	assert.NotEmpty(t, pending[0].ID)
	assert.NotEqual(t, pending[0].ID, pending[1].ID)
}
