// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"github.com/edgexfoundry/go-mod-core-contracts/clients/logger"
)

var (
	ServiceName    = "device-controller"
	ServiceVersion = "1.0.0"

	// LoggingClient defaults to stdout at INFO until InitLogger replaces it
	// from the loaded config.
	LoggingClient = logger.NewClient(ServiceName, false, "", "INFO")
)

// InitLogger rebuilds the logging client from the [log] config section.
func InitLogger(cfg LogInfo) {
	level := cfg.Level
	if level == "" {
		level = "INFO"
	}
	LoggingClient = logger.NewClient(ServiceName, cfg.EnableRemote, cfg.File, level)
}
