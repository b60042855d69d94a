// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"github.com/lspcsoft/device-controller/pkg/models"
)

// TaskSettings tunes the deferred-write scheduler.
type TaskSettings struct {
	TimeoutMs       uint32 `json:"timeout_ms" toml:"timeout_ms" yaml:"timeout_ms"`
	CheckIntervalMs uint32 `json:"check_interval_ms" toml:"check_interval_ms" yaml:"check_interval_ms"`
	MaxRetries      int    `json:"max_retries" toml:"max_retries" yaml:"max_retries"`
}

// WebServerInfo is the HTTP bind address.
type WebServerInfo struct {
	Host string `json:"host" toml:"host" yaml:"host"`
	Port int    `json:"port" toml:"port" yaml:"port"`
}

// LogInfo configures the logging client.
type LogInfo struct {
	File         string `json:"file,omitempty" toml:"file" yaml:"file,omitempty"`
	Level        string `json:"level,omitempty" toml:"level" yaml:"level,omitempty"`
	EnableRemote bool   `json:"enable_remote,omitempty" toml:"enable_remote" yaml:"enable_remote,omitempty"`
}

// FileInfo, DatabaseInfo and ResourceInfo belong to the layers above the
// core (file manager page, relational CRUD, static resources). The loader
// carries them through untouched.
type FileInfo struct {
	Root string `json:"root,omitempty" toml:"root" yaml:"root,omitempty"`
}

type DatabaseInfo struct {
	Type string `json:"type,omitempty" toml:"type" yaml:"type,omitempty"`
	Path string `json:"path,omitempty" toml:"path" yaml:"path,omitempty"`
}

type ResourceInfo struct {
	Root string `json:"root,omitempty" toml:"root" yaml:"root,omitempty"`
}

// Config holds all of the local configuration settings for the controller.
type Config struct {
	Channels     []models.ChannelConfig `json:"channels" toml:"channels" yaml:"channels"`
	Nodes        []models.NodeConfig    `json:"nodes" toml:"nodes" yaml:"nodes"`
	Scenes       []models.SceneConfig   `json:"scenes,omitempty" toml:"scenes" yaml:"scenes,omitempty"`
	TaskSettings TaskSettings           `json:"task_settings" toml:"task_settings" yaml:"task_settings"`
	WebServer    WebServerInfo          `json:"web_server" toml:"web_server" yaml:"web_server"`
	File         *FileInfo              `json:"file,omitempty" toml:"file" yaml:"file,omitempty"`
	Database     *DatabaseInfo          `json:"database,omitempty" toml:"database" yaml:"database,omitempty"`
	Resource     *ResourceInfo          `json:"resource,omitempty" toml:"resource" yaml:"resource,omitempty"`
	Log          LogInfo                `json:"log,omitempty" toml:"log" yaml:"log,omitempty"`
}
