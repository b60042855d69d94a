// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Package driver hosts the protocol driver registry and every concrete
// driver family. Drivers register themselves by protocol-kind tag in their
// init functions; the channel manager builds instances through New.
package driver

import (
	"sort"
	"sync"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

// Factory builds a driver instance for one channel from its decoded
// arguments.
type Factory func(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error)

var (
	regMu    sync.RWMutex
	registry = make(map[string]Factory)
)

// Register binds a protocol-kind tag to its factory. Later registrations
// replace earlier ones, which lets tests substitute driver kinds.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[kind] = f
}

// New constructs a driver for the given protocol kind. Unknown kinds fail
// with a ProtocolError.
func New(kind string, channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	regMu.RLock()
	f, ok := registry[kind]
	regMu.RUnlock()
	if !ok {
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown protocol kind %q", kind)
	}
	return f(channelID, args)
}

// Kinds lists the registered protocol-kind tags.
func Kinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// errUnsupportedMethod is the default CallMethod answer for drivers without
// the named method.
func errUnsupportedMethod(driver, method string) error {
	return common.NewAppErrorf(common.KindProtocolError, "driver %s does not support method %q", driver, method)
}
