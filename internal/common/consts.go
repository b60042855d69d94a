// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package common

const (
	APIDevicePrefix = "/lspcapi/device"
	APIPingRoute    = APIDevicePrefix + "/ping"
	APIEventsRoute  = APIDevicePrefix + "/events"

	ConfigDirectory = "./res"
	ConfigFileName  = "configuration"

	DeviceCacheFile    = "device_cache.json"
	ProtocolStorageDir = "data/protocol_storage"
	MockStorageDir     = "data/mock_storage"

	DefaultTaskTimeoutMs       = 5000
	DefaultTaskCheckIntervalMs = 500
	DefaultTaskMaxRetries      = 3

	DefaultEventBufferSize = 1000
)
