// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"fmt"
	"time"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

// fulfillSettle is how long a device gets to settle after an
// auto-fulfillment write before the next action.
const fulfillSettle = 100 * time.Millisecond

// Writer is the slice of the controller the resolver needs for
// auto-fulfillment.
type Writer interface {
	ExecuteWrite(channelID, deviceID uint32, value int32) error
}

// Resolver evaluates dependency predicates against current node state.
type Resolver struct {
	nodes *Manager
}

func NewResolver(nodes *Manager) *Resolver {
	return &Resolver{nodes: nodes}
}

// resolveTarget finds the global id a predicate points at. With a
// channel_id the predicate's id is a device id on that channel; without
// one it is the global id directly.
func (r *Resolver) resolveTarget(dep models.Dependency) (uint32, error) {
	if dep.ID == nil {
		return 0, common.NewAppError(common.KindConfigError, "dependency has no target id")
	}
	if dep.ChannelID != nil {
		return r.nodes.FindGlobalID(*dep.ChannelID, *dep.ID)
	}
	if _, err := r.nodes.GetNode(*dep.ID); err != nil {
		return 0, err
	}
	return *dep.ID, nil
}

// Check evaluates all predicates and ANDs the results. A value predicate
// against a node that has never been read or written fails.
func (r *Resolver) Check(deps []models.Dependency) (bool, error) {
	for _, dep := range deps {
		globalID, err := r.resolveTarget(dep)
		if err != nil {
			return false, err
		}
		state, err := r.nodes.GetState(globalID)
		if err != nil {
			return false, err
		}
		if dep.Value != nil {
			if state.CurrentValue == nil || *state.CurrentValue != *dep.Value {
				return false, nil
			}
		}
		if dep.Status != nil && state.Online != *dep.Status {
			return false, nil
		}
	}
	return true, nil
}

// Fulfill drives every value predicate's target to its expected value,
// pausing after each write so the device settles. Only nodes with the auto
// dependency strategy reach this path.
func (r *Resolver) Fulfill(deps []models.Dependency, w Writer) error {
	for _, dep := range deps {
		if dep.ID == nil || dep.Value == nil {
			continue
		}
		globalID, err := r.resolveTarget(dep)
		if err != nil {
			return err
		}
		state, err := r.nodes.GetState(globalID)
		if err != nil {
			return err
		}
		if state.CurrentValue != nil && *state.CurrentValue == *dep.Value {
			continue
		}
		common.LoggingClient.Info(fmt.Sprintf("auto-fulfilling dependency: node %d -> %d", globalID, *dep.Value))
		if err := w.ExecuteWrite(state.ChannelID, state.DeviceID, *dep.Value); err != nil {
			return common.WrapError(common.KindDependencyNotMet, err,
				fmt.Sprintf("fulfilling dependency on node %d", globalID))
		}
		time.Sleep(fulfillSettle)
	}
	return nil
}
