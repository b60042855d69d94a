// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package models

import "time"

// TaskStatus is the scheduler-side lifecycle of a deferred write.
type TaskStatus string

const (
	TaskPending   TaskStatus = "Pending"
	TaskExecuting TaskStatus = "Executing"
	TaskCompleted TaskStatus = "Completed"
	TaskFailed    TaskStatus = "Failed"
	TaskTimeout   TaskStatus = "Timeout"
)

// Terminal reports whether the status removes the task from the queue.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskTimeout
}

// Task is a write deferred until its node's dependencies are met. Created on
// submit, mutated only by the scheduler loop, removed when terminal.
type Task struct {
	ID         string     `json:"id"`
	GlobalID   uint32     `json:"global_id"`
	ChannelID  uint32     `json:"channel_id"`
	DeviceID   uint32     `json:"device_id"`
	Value      int32      `json:"value"`
	Alias      string     `json:"alias,omitempty"`
	Status     TaskStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	RetryCount int        `json:"retry_count"`
	Node       NodeConfig `json:"node"`
}
