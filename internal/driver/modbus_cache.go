// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"sync"
	"time"
)

// cachedRegister is one register (or coil) observation from auto-poll or a
// device read. Purely advisory; readers opt in with use_cache.
type cachedRegister struct {
	Value      uint16    `json:"value"`
	TypeTag    string    `json:"type"`
	ObservedAt time.Time `json:"observed_at"`
}

// registerCache maps register addresses to their last observed raw value.
// The lock is held only for map access, never across I/O.
type registerCache struct {
	mu   sync.RWMutex
	regs map[uint16]cachedRegister
}

func newRegisterCache() *registerCache {
	return &registerCache{regs: make(map[uint16]cachedRegister)}
}

const (
	cacheTagRegister = "register"
	cacheTagCoil     = "coil"
)

// StoreBlock records a block of consecutive register values starting at
// start, all observed now.
func (c *registerCache) StoreBlock(start uint16, values []uint16, tag string) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, v := range values {
		c.regs[start+uint16(i)] = cachedRegister{Value: v, TypeTag: tag, ObservedAt: now}
	}
}

// ReadTyped reconstructs a typed value by stitching RegisterCount
// consecutive entries. Any missing register is a cache miss.
func (c *registerCache) ReadTyped(addr uint16, dt DataType) (float64, bool) {
	count := dt.RegisterCount()
	regs := make([]uint16, 0, count)

	c.mu.RLock()
	for i := uint16(0); i < count; i++ {
		entry, ok := c.regs[addr+i]
		if !ok {
			c.mu.RUnlock()
			return 0, false
		}
		if dt.IsCoil() != (entry.TypeTag == cacheTagCoil) {
			c.mu.RUnlock()
			return 0, false
		}
		regs = append(regs, entry.Value)
	}
	c.mu.RUnlock()

	if dt.IsCoil() {
		if regs[0] != 0 {
			return 1, true
		}
		return 0, true
	}
	v, err := dt.Decode(regs)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Len reports the number of cached entries.
func (c *registerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.regs)
}
