// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Package scheduler runs the deferred-write queue: writes whose node
// dependencies were not met at submit time wait here until the
// dependencies resolve, the task times out or its retries run out.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lspcsoft/device-controller/internal/bus"
	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

// ChannelWriter is the slice of the channel manager the scheduler uses.
type ChannelWriter interface {
	Write(channelID, deviceID uint32, value int32) error
}

// DependencyChecker evaluates a task's dependency predicates.
type DependencyChecker interface {
	Check(deps []models.Dependency) (bool, error)
}

// NodeUpdater records a completed task's value on the node.
type NodeUpdater interface {
	UpdateValue(globalID uint32, value int32) error
}

// Scheduler owns a FIFO queue of tasks under one lock plus the permanent
// background loop that advances them. Tasks are evaluated in order; a
// pending task whose dependencies are unmet is passed over, so head-of-line
// blocking applies only to execution, not evaluation.
type Scheduler struct {
	mu    sync.Mutex
	queue []*models.Task

	timeout       time.Duration
	checkInterval time.Duration
	maxRetries    int

	channels ChannelWriter
	resolver DependencyChecker
	nodes    NodeUpdater
	events   *bus.EventBus

	stopOnce sync.Once
	stop     chan struct{}
}

// New builds the scheduler and starts its background loop.
func New(settings common.TaskSettings, channels ChannelWriter, resolver DependencyChecker,
	nodes NodeUpdater, events *bus.EventBus) *Scheduler {

	if settings.TimeoutMs == 0 {
		settings.TimeoutMs = common.DefaultTaskTimeoutMs
	}
	if settings.CheckIntervalMs == 0 {
		settings.CheckIntervalMs = common.DefaultTaskCheckIntervalMs
	}
	if settings.MaxRetries == 0 {
		settings.MaxRetries = common.DefaultTaskMaxRetries
	}

	s := &Scheduler{
		timeout:       time.Duration(settings.TimeoutMs) * time.Millisecond,
		checkInterval: time.Duration(settings.CheckIntervalMs) * time.Millisecond,
		maxRetries:    settings.MaxRetries,
		channels:      channels,
		resolver:      resolver,
		nodes:         nodes,
		events:        events,
		stop:          make(chan struct{}),
	}
	go s.loop()
	return s
}

// Submit appends a pending task for the node and returns it.
func (s *Scheduler) Submit(node models.NodeConfig, value int32) *models.Task {
	task := &models.Task{
		ID:        uuid.New().String(),
		GlobalID:  node.GlobalID,
		ChannelID: node.ChannelID,
		DeviceID:  node.DeviceID,
		Value:     value,
		Alias:     node.Alias,
		Status:    models.TaskPending,
		CreatedAt: time.Now(),
		Node:      node,
	}
	s.mu.Lock()
	s.queue = append(s.queue, task)
	depth := len(s.queue)
	s.mu.Unlock()

	common.LoggingClient.Info(fmt.Sprintf("task %s queued: node %d value %d (queue depth %d)",
		task.ID, node.GlobalID, value, depth))
	return task
}

// Pending snapshots the current queue.
func (s *Scheduler) Pending() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, 0, len(s.queue))
	for _, t := range s.queue {
		out = append(out, *t)
	}
	return out
}

// QueueLen reports the queue depth.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stop halts the background loop. Queued tasks are dropped; shutdown is
// abrupt by design.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick advances every task one step and removes the terminal ones,
// iterating in reverse so removals keep indices valid.
func (s *Scheduler) tick() {
	s.mu.Lock()
	tasks := make([]*models.Task, len(s.queue))
	copy(tasks, s.queue)
	s.mu.Unlock()

	if len(tasks) == 0 {
		return
	}

	for _, task := range tasks {
		s.advance(task)
	}

	s.mu.Lock()
	for i := len(s.queue) - 1; i >= 0; i-- {
		if s.queue[i].Status.Terminal() {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
		}
	}
	s.mu.Unlock()
}

// advance moves one task a single step. Blocking work (dependency checks,
// channel writes) runs without the lock held; task fields are only ever
// mutated through the locked helpers so Pending snapshots stay consistent
// with the loop.
func (s *Scheduler) advance(task *models.Task) {
	s.mu.Lock()
	retries := task.RetryCount
	s.mu.Unlock()

	switch {
	case time.Since(task.CreatedAt) > s.timeout:
		s.setStatus(task, models.TaskTimeout)
		common.LoggingClient.Warn(fmt.Sprintf("task %s timed out waiting for dependencies of node %d",
			task.ID, task.GlobalID))
		s.publishCompleted(task, false)

	case retries >= s.maxRetries:
		s.setStatus(task, models.TaskFailed)
		common.LoggingClient.Warn(fmt.Sprintf("task %s failed after %d retries", task.ID, retries))
		s.publishCompleted(task, false)

	default:
		met, err := s.resolver.Check(task.Node.Depends)
		if err != nil {
			s.bumpRetry(task)
			common.LoggingClient.Warn(fmt.Sprintf("task %s dependency check failed: %v", task.ID, err))
			return
		}
		if !met {
			return
		}
		s.setStatus(task, models.TaskExecuting)
		if err := s.channels.Write(task.ChannelID, task.DeviceID, task.Value); err != nil {
			retries = s.bumpRetry(task)
			s.setStatus(task, models.TaskPending)
			common.LoggingClient.Warn(fmt.Sprintf("task %s write failed (retry %d): %v",
				task.ID, retries, err))
			return
		}
		s.setStatus(task, models.TaskCompleted)
		if err := s.nodes.UpdateValue(task.GlobalID, task.Value); err != nil {
			common.LoggingClient.Warn(fmt.Sprintf("task %s: updating node %d state failed: %v",
				task.ID, task.GlobalID, err))
		}
		common.LoggingClient.Info(fmt.Sprintf("task %s completed: node %d value %d",
			task.ID, task.GlobalID, task.Value))
		s.publishCompleted(task, true)
	}
}

func (s *Scheduler) setStatus(task *models.Task, status models.TaskStatus) {
	s.mu.Lock()
	task.Status = status
	s.mu.Unlock()
}

func (s *Scheduler) bumpRetry(task *models.Task) int {
	s.mu.Lock()
	task.RetryCount++
	n := task.RetryCount
	s.mu.Unlock()
	return n
}

func (s *Scheduler) publishCompleted(task *models.Task, success bool) {
	if s.events != nil {
		s.events.Publish(models.NewTaskCompleted(task.ID, task.GlobalID, success))
	}
}
