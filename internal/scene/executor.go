// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Package scene runs named node-write programs. Execution is
// fire-and-forget for the caller and mutually exclusive across the
// process: the single slot is reserved before the background run starts
// and a second request fails immediately with a busy error.
package scene

import (
	"fmt"
	"sync"
	"time"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/lspcsoft/device-controller/internal/bus"
	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

// NodeWriter is the slice of the controller a running scene drives.
type NodeWriter interface {
	WriteNode(globalID uint32, value int32) error
}

// Executor holds the configured scenes and the single execution slot.
type Executor struct {
	scenes map[string]models.SceneConfig
	order  []string

	mu      sync.Mutex
	current string

	events *bus.EventBus
}

func NewExecutor(scenes []models.SceneConfig, events *bus.EventBus) *Executor {
	e := &Executor{
		scenes: make(map[string]models.SceneConfig, len(scenes)),
		events: events,
	}
	for _, sc := range scenes {
		e.scenes[sc.Name] = sc
		e.order = append(e.order, sc.Name)
	}
	return e
}

// Execute reserves the slot and starts the scene in the background. The
// caller returns as soon as the reservation succeeds; progress is
// observable via events and GetExecutionStatus.
func (e *Executor) Execute(name string, w NodeWriter) error {
	sc, ok := e.scenes[name]
	if !ok {
		return common.NewAppErrorf(common.KindOther, "scene '%s' not found", name)
	}

	e.mu.Lock()
	if e.current != "" {
		busy := e.current
		e.mu.Unlock()
		return common.NewAppErrorf(common.KindOther, "scene '%s' is executing, try again later", busy)
	}
	e.current = name
	e.mu.Unlock()

	if e.events != nil {
		e.events.Publish(models.NewSceneStarted(name))
	}
	common.LoggingClient.Info(fmt.Sprintf("scene '%s' started with %d members", name, len(sc.Nodes)))

	go e.run(sc, w)
	return nil
}

// run walks the members in declaration order. A member failure does not
// abort the scene; it only drags the final event's success down.
func (e *Executor) run(sc models.SceneConfig, w NodeWriter) {
	var errs *multierror.Error
	for _, member := range sc.Nodes {
		if member.DelayMs > 0 {
			time.Sleep(time.Duration(member.DelayMs) * time.Millisecond)
		}
		if err := w.WriteNode(member.ID, member.Value); err != nil {
			common.LoggingClient.Warn(fmt.Sprintf("scene '%s': writing node %d failed: %v",
				sc.Name, member.ID, err))
			errs = multierror.Append(errs, err)
		}
	}

	e.mu.Lock()
	e.current = ""
	e.mu.Unlock()

	success := errs.ErrorOrNil() == nil
	if e.events != nil {
		e.events.Publish(models.NewSceneCompleted(sc.Name, success))
	}
	common.LoggingClient.Info(fmt.Sprintf("scene '%s' completed, success=%v", sc.Name, success))
}

// ListScenes returns the configured scenes in declaration order.
func (e *Executor) ListScenes() []models.SceneConfig {
	out := make([]models.SceneConfig, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.scenes[name])
	}
	return out
}

// GetScene looks a scene up by name.
func (e *Executor) GetScene(name string) (models.SceneConfig, error) {
	sc, ok := e.scenes[name]
	if !ok {
		return models.SceneConfig{}, common.NewAppErrorf(common.KindOther, "scene '%s' not found", name)
	}
	return sc, nil
}

// GetExecutionStatus reports whether a scene is running and which one.
func (e *Executor) GetExecutionStatus() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != "", e.current
}
