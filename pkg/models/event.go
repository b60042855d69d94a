// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package models

import "time"

// EventType tags events published on the internal bus.
type EventType string

const (
	EventNodeStateChanged    EventType = "NodeStateChanged"
	EventChannelConnected    EventType = "ChannelConnected"
	EventChannelDisconnected EventType = "ChannelDisconnected"
	EventTaskCompleted       EventType = "TaskCompleted"
	EventSceneStarted        EventType = "SceneStarted"
	EventSceneCompleted      EventType = "SceneCompleted"
)

// Event is a single bus message. Only the fields relevant to Type are set;
// the zero values of the rest are omitted on the wire.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	GlobalID  uint32    `json:"global_id,omitempty"`
	ChannelID uint32    `json:"channel_id,omitempty"`
	OldValue  int32     `json:"old_value"`
	NewValue  int32     `json:"new_value"`
	TaskID    string    `json:"task_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
}

func NewNodeStateChanged(globalID uint32, oldValue, newValue int32) Event {
	return Event{
		Type:      EventNodeStateChanged,
		Timestamp: time.Now(),
		GlobalID:  globalID,
		OldValue:  oldValue,
		NewValue:  newValue,
	}
}

func NewChannelConnected(channelID uint32) Event {
	return Event{Type: EventChannelConnected, Timestamp: time.Now(), ChannelID: channelID}
}

func NewChannelDisconnected(channelID uint32, reason string) Event {
	return Event{Type: EventChannelDisconnected, Timestamp: time.Now(), ChannelID: channelID, Reason: reason}
}

func NewTaskCompleted(taskID string, globalID uint32, success bool) Event {
	return Event{Type: EventTaskCompleted, Timestamp: time.Now(), TaskID: taskID, GlobalID: globalID, Success: success}
}

func NewSceneStarted(name string) Event {
	return Event{Type: EventSceneStarted, Timestamp: time.Now(), Name: name}
}

func NewSceneCompleted(name string, success bool) Event {
	return Event{Type: EventSceneCompleted, Timestamp: time.Now(), Name: name, Success: success}
}
