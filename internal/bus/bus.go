// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Package bus implements the internal event broadcaster. Delivery is
// best-effort: each subscriber owns a bounded channel and events to a full
// subscriber are dropped, never queued per subscriber.
package bus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

// EventBus fans events out to all current subscribers.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan models.Event
	nextID  uint64
	buffer  int
	dropped uint64
}

// New creates a bus whose subscribers each get a channel of the given
// capacity. A non-positive capacity falls back to the default.
func New(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = common.DefaultEventBufferSize
	}
	return &EventBus{
		subs:   make(map[uint64]chan models.Event),
		buffer: buffer,
	}
}

// Publish delivers e to every subscriber without blocking. Slow subscribers
// lose events.
func (b *EventBus) Publish(e models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			atomic.AddUint64(&b.dropped, 1)
			common.LoggingClient.Debug(fmt.Sprintf("event bus: dropped %s event for slow subscriber", e.Type))
		}
	}
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function. The channel is closed on cancel.
func (b *EventBus) Subscribe() (<-chan models.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan models.Event, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// SubscriberCount reports the number of active subscribers.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
