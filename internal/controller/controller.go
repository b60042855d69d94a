// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Package controller composes the channel manager, node registry,
// dependency resolver, task scheduler and scene executor into the public
// surface the HTTP layer calls.
package controller

import (
	"fmt"

	"github.com/lspcsoft/device-controller/internal/bus"
	"github.com/lspcsoft/device-controller/internal/cache"
	"github.com/lspcsoft/device-controller/internal/channel"
	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/internal/node"
	"github.com/lspcsoft/device-controller/internal/scene"
	"github.com/lspcsoft/device-controller/internal/scheduler"
	"github.com/lspcsoft/device-controller/pkg/models"
)

// Controller is the device-control façade. It exclusively owns every
// component it composes.
type Controller struct {
	events    *bus.EventBus
	channels  *channel.Manager
	nodes     *node.Manager
	resolver  *node.Resolver
	scheduler *scheduler.Scheduler
	scenes    *scene.Executor
	persist   *cache.DeviceCache
}

// New wires the controller from a loaded config. Channel construction
// failures lose individual channels but are not fatal; the scheduler's
// background loop starts here.
func New(cfg *common.Config) (*Controller, error) {
	return NewWithCacheFile(cfg, common.DeviceCacheFile)
}

// NewWithCacheFile is New with an explicit device-cache path. Tests point
// it at a scratch directory.
func NewWithCacheFile(cfg *common.Config, cachePath string) (*Controller, error) {
	persist, err := cache.NewDeviceCache(cachePath)
	if err != nil {
		return nil, err
	}

	events := bus.New(common.DefaultEventBufferSize)
	channels := channel.NewManager(cfg.Channels, events)
	nodes := node.NewManager(cfg.Nodes, events)
	resolver := node.NewResolver(nodes)
	sched := scheduler.New(cfg.TaskSettings, channels, resolver, nodes, events)
	scenes := scene.NewExecutor(cfg.Scenes, events)

	common.LoggingClient.Info(fmt.Sprintf("controller ready: %d channels, %d nodes, %d scenes",
		len(channels.ChannelIDs()), nodes.NodeCount(), len(scenes.ListScenes())))

	return &Controller{
		events:    events,
		channels:  channels,
		nodes:     nodes,
		resolver:  resolver,
		scheduler: sched,
		scenes:    scenes,
		persist:   persist,
	}, nil
}

// WriteNode writes an operator value to a node.
//
// Unmet dependencies are not an error: with the manual strategy the write
// is queued on the scheduler and the caller still gets success; with the
// auto strategy the resolver drives the dependencies to their expected
// values first and the write proceeds.
func (c *Controller) WriteNode(globalID uint32, value int32) error {
	cfg, err := c.nodes.GetNode(globalID)
	if err != nil {
		return err
	}

	if len(cfg.Depends) > 0 {
		met, err := c.resolver.Check(cfg.Depends)
		if err != nil {
			return err
		}
		if !met {
			if cfg.DependStrategy == models.DependStrategyAuto {
				if err := c.resolver.Fulfill(cfg.Depends, c); err != nil {
					return err
				}
			} else {
				c.scheduler.Submit(cfg, value)
				common.LoggingClient.Info(fmt.Sprintf("node %d write deferred, dependencies not met", globalID))
				return nil
			}
		}
	}

	if cfg.DataPoint != nil {
		if err := c.writeTyped(cfg, value); err != nil {
			return err
		}
	} else {
		if err := c.channels.Write(cfg.ChannelID, cfg.DeviceID, value); err != nil {
			return err
		}
	}

	if err := c.nodes.UpdateValue(globalID, value); err != nil {
		return err
	}
	c.persistValue(cfg, value)
	return nil
}

// writeTyped is the Modbus data-point path: the operator value is
// pre-divided by the scale and written through the typed command surface.
func (c *Controller) writeTyped(cfg models.NodeConfig, value int32) error {
	raw := float64(value)
	if cfg.DataPoint.Scale != 0 {
		raw = raw / cfg.DataPoint.Scale
	}
	_, err := c.channels.Execute(cfg.ChannelID, "write_typed", map[string]interface{}{
		"addr":  cfg.DataPoint.Addr,
		"type":  cfg.DataPoint.Type,
		"value": raw,
	})
	return err
}

// ReadNode reads a node and returns the operator-scaled value.
func (c *Controller) ReadNode(globalID uint32) (float64, error) {
	cfg, err := c.nodes.GetNode(globalID)
	if err != nil {
		return 0, err
	}

	if cfg.DataPoint != nil {
		result, err := c.channels.Execute(cfg.ChannelID, "read_typed", map[string]interface{}{
			"addr":      cfg.DataPoint.Addr,
			"type":      cfg.DataPoint.Type,
			"use_cache": true,
		})
		if err != nil {
			return 0, err
		}
		raw, ok := result["value"].(float64)
		if !ok {
			return 0, common.NewAppErrorf(common.KindProtocolError,
				"channel %d returned non-numeric value", cfg.ChannelID)
		}
		scaled := raw
		if cfg.DataPoint.Scale != 0 {
			scaled = raw * cfg.DataPoint.Scale
		}
		if err := c.nodes.UpdateValue(globalID, int32(scaled)); err != nil {
			return 0, err
		}
		return scaled, nil
	}

	v, err := c.channels.Read(cfg.ChannelID, cfg.DeviceID)
	if err != nil {
		return 0, err
	}
	if err := c.nodes.UpdateValue(globalID, v); err != nil {
		return 0, err
	}
	return float64(v), nil
}

// ExecuteWrite is the raw endpoint write used by dependency
// auto-fulfillment. Node state is updated when the endpoint maps to a
// configured node.
func (c *Controller) ExecuteWrite(channelID, deviceID uint32, value int32) error {
	if err := c.channels.Write(channelID, deviceID, value); err != nil {
		return err
	}
	if globalID, err := c.nodes.FindGlobalID(channelID, deviceID); err == nil {
		if err := c.nodes.UpdateValue(globalID, value); err != nil {
			return err
		}
	}
	return nil
}

// persistValue writes the node's last value through the keyed device
// cache. Failures are logged, never surfaced.
func (c *Controller) persistValue(cfg models.NodeConfig, value int32) {
	if c.persist == nil {
		return
	}
	key := fmt.Sprintf("node_%d", cfg.GlobalID)
	if err := c.persist.Put(cfg.ChannelID, key, value); err != nil {
		common.LoggingClient.Warn(fmt.Sprintf("persisting node %d value failed: %v", cfg.GlobalID, err))
	}
}

// LastPersistedValue returns the value recorded for the node in the keyed
// device cache, surviving restarts.
func (c *Controller) LastPersistedValue(globalID uint32) (int32, bool) {
	cfg, err := c.nodes.GetNode(globalID)
	if err != nil || c.persist == nil {
		return 0, false
	}
	return c.persist.Get(cfg.ChannelID, fmt.Sprintf("node_%d", globalID))
}

// SubscribeEvents attaches a new event-bus subscriber.
func (c *Controller) SubscribeEvents() (<-chan models.Event, func()) {
	return c.events.Subscribe()
}

// ExecuteScene fires a scene; the call returns once the execution slot is
// reserved.
func (c *Controller) ExecuteScene(name string) error {
	return c.scenes.Execute(name, c)
}

// SceneStatus reports whether a scene is running and which.
func (c *Controller) SceneStatus() (bool, string) {
	return c.scenes.GetExecutionStatus()
}

// ListScenes returns the configured scenes.
func (c *Controller) ListScenes() []models.SceneConfig {
	return c.scenes.ListScenes()
}

// ExecuteChannelCommand runs a driver command on a channel.
func (c *Controller) ExecuteChannelCommand(channelID uint32, command string, params map[string]interface{}) (map[string]interface{}, error) {
	return c.channels.Execute(channelID, command, params)
}

// CallChannelMethod invokes a named driver method on a channel.
func (c *Controller) CallChannelMethod(channelID uint32, name string, args map[string]interface{}) (map[string]interface{}, error) {
	return c.channels.CallMethod(channelID, name, args)
}

// GetChannelMethods lists a channel's declared methods.
func (c *Controller) GetChannelMethods(channelID uint32) ([]string, error) {
	return c.channels.GetMethods(channelID)
}

// GetAllChannelStatus collects driver status for every channel.
func (c *Controller) GetAllChannelStatus() map[uint32]map[string]interface{} {
	return c.channels.GetAllStatus()
}

// GetNodeState returns one node's runtime state.
func (c *Controller) GetNodeState(globalID uint32) (models.NodeState, error) {
	return c.nodes.GetState(globalID)
}

// GetAllNodeStates snapshots every node state.
func (c *Controller) GetAllNodeStates() []models.NodeState {
	return c.nodes.GetAllStates()
}

// PendingTasks snapshots the scheduler queue.
func (c *Controller) PendingTasks() []models.Task {
	return c.scheduler.Pending()
}

// Stop halts the scheduler loop. Everything else is dropped abruptly.
func (c *Controller) Stop() {
	c.scheduler.Stop()
}
