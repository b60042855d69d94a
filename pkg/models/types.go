// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Package models defines the shared data model of the device controller:
// channel and node configuration, runtime node state, scenes, scheduler
// tasks and the event types published on the internal bus.
package models

import (
	"encoding/json"
	"time"
)

// Protocol kind tags accepted in ChannelConfig.Statute. Unknown tags fail
// channel construction.
const (
	StatutePJLink           = "pjlink"
	StatuteModbus           = "modbus"
	StatuteModbusSlave      = "modbus-slave"
	StatuteXinkeQ1          = "xinkeQ1"
	StatuteComputerControl  = "computerControl"
	StatuteCustom           = "custom"
	StatuteScreenNJLGPLC    = "screen-njlg-plc"
	StatuteHSPowerSequencer = "hs-power-sequencer"
	StatuteNovastar         = "novastar"
	StatuteMock             = "mock"
	StatuteQNSmartPLC       = "qn-smart-plc"
	StatuteTprisPDU         = "tpris-pdu"
	StatuteSplicer3D        = "splicer_3d"
	StatuteXFusion          = "xfusion"
	StatuteYKVAP            = "yk-vap"
)

// Dependency strategies for nodes with unmet dependencies.
const (
	DependStrategyAuto   = "auto"
	DependStrategyManual = "manual"
)

// MethodDef declares a named method a channel exposes through CallMethod.
type MethodDef struct {
	Name        string `json:"name" toml:"name" yaml:"name"`
	Description string `json:"description,omitempty" toml:"description" yaml:"description,omitempty"`
}

// AutoPollSpec configures one periodic background block read on a Modbus
// channel. Results land in the channel's register cache.
type AutoPollSpec struct {
	Function   string `json:"function" toml:"function" yaml:"function"`
	StartAddr  uint16 `json:"start_addr" toml:"start_addr" yaml:"start_addr"`
	Count      uint16 `json:"count" toml:"count" yaml:"count"`
	IntervalMs uint32 `json:"interval_ms" toml:"interval_ms" yaml:"interval_ms"`
}

// ChannelConfig binds a channel id to a protocol driver. Loaded once at
// startup; mutating it requires a process restart.
type ChannelConfig struct {
	ChannelID uint32          `json:"channel_id" toml:"channel_id" yaml:"channel_id"`
	Enabled   bool            `json:"enabled" toml:"enabled" yaml:"enabled"`
	Statute   string          `json:"statute" toml:"statute" yaml:"statute"`
	Arguments json.RawMessage `json:"arguments,omitempty" toml:"-" yaml:"-"`
	Methods   []MethodDef     `json:"methods,omitempty" toml:"methods" yaml:"methods,omitempty"`
	AutoCall  []AutoPollSpec  `json:"auto_call,omitempty" toml:"auto_call" yaml:"auto_call,omitempty"`
}

// Dependency is a predicate over another node's current value and/or online
// status. When both Value and Status are set, both must hold.
//
// The target node is addressed either by global id (ID alone) or by
// (ChannelID, ID) where ID is then the device id on that channel.
type Dependency struct {
	ChannelID *uint32 `json:"channel_id,omitempty" toml:"channel_id" yaml:"channel_id,omitempty"`
	ID        *uint32 `json:"id,omitempty" toml:"id" yaml:"id,omitempty"`
	Value     *int32  `json:"value,omitempty" toml:"value" yaml:"value,omitempty"`
	Status    *bool   `json:"status,omitempty" toml:"status" yaml:"status,omitempty"`
}

// DataPoint describes a typed Modbus register bound to a node. Scale, when
// non-zero, converts between the raw register value and the operator value:
// raw = operator / scale on write, operator = raw * scale on read.
type DataPoint struct {
	Type  string  `json:"type" toml:"type" yaml:"type"`
	Addr  uint16  `json:"addr" toml:"addr" yaml:"addr"`
	Scale float64 `json:"scale,omitempty" toml:"scale" yaml:"scale,omitempty"`
	Unit  string  `json:"unit,omitempty" toml:"unit" yaml:"unit,omitempty"`
}

// NodeConfig is the static description of a logical device. GlobalID is the
// primary key; (ChannelID, DeviceID) identifies the physical endpoint.
type NodeConfig struct {
	GlobalID       uint32       `json:"global_id" toml:"global_id" yaml:"global_id"`
	ChannelID      uint32       `json:"channel_id" toml:"channel_id" yaml:"channel_id"`
	DeviceID       uint32       `json:"device_id" toml:"device_id" yaml:"device_id"`
	Category       string       `json:"category,omitempty" toml:"category" yaml:"category,omitempty"`
	Alias          string       `json:"alias,omitempty" toml:"alias" yaml:"alias,omitempty"`
	Depends        []Dependency `json:"depends,omitempty" toml:"depends" yaml:"depends,omitempty"`
	DependStrategy string       `json:"depend_strategy,omitempty" toml:"depend_strategy" yaml:"depend_strategy,omitempty"`
	DataPoint      *DataPoint   `json:"data_point,omitempty" toml:"data_point" yaml:"data_point,omitempty"`
}

// NodeState is the runtime view of a node. CurrentValue stays nil until the
// first successful read or write; Online flips to true on any success.
type NodeState struct {
	GlobalID     uint32     `json:"global_id"`
	ChannelID    uint32     `json:"channel_id"`
	DeviceID     uint32     `json:"device_id"`
	Category     string     `json:"category,omitempty"`
	Alias        string     `json:"alias,omitempty"`
	CurrentValue *int32     `json:"current_value,omitempty"`
	Online       bool       `json:"online"`
	LastUpdate   *time.Time `json:"last_update,omitempty"`
}

// SceneMember is one step of a scene: write Value to node ID after an
// optional delay.
type SceneMember struct {
	ID      uint32 `json:"id" toml:"id" yaml:"id"`
	Value   int32  `json:"value" toml:"value" yaml:"value"`
	DelayMs uint32 `json:"delay_ms,omitempty" toml:"delay_ms" yaml:"delay_ms,omitempty"`
}

// SceneConfig is a named, ordered program of node writes. At most one scene
// executes at a time across the process.
type SceneConfig struct {
	Name  string        `json:"name" toml:"name" yaml:"name"`
	Nodes []SceneMember `json:"nodes" toml:"nodes" yaml:"nodes"`
}
