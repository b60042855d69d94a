// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Package cache holds the process-wide persistent stores: the keyed
// (channel, key) -> int32 device cache, per-channel protocol storage and
// the session-token cache layered on top.
package cache

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"sort"
	"sync"

	"github.com/lspcsoft/device-controller/internal/common"
)

type cacheKey struct {
	channelID uint32
	key       string
}

type cacheEntry struct {
	ChannelID uint32 `json:"channel_id"`
	Key       string `json:"key"`
	Value     int32  `json:"value"`
}

// DeviceCache is the process-wide keyed int32 store, write-through to a
// JSON file on every mutation. Acceptable only at low write rates.
type DeviceCache struct {
	mu     sync.Mutex
	path   string
	values map[cacheKey]int32
}

// NewDeviceCache opens (or creates) the cache file at path. A missing file
// starts empty; a corrupt file is an error.
func NewDeviceCache(path string) (*DeviceCache, error) {
	c := &DeviceCache{
		path:   path,
		values: make(map[cacheKey]int32),
	}

	contents, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, common.WrapError(common.KindIo, err, fmt.Sprintf("reading device cache %s", path))
	}

	var entries []cacheEntry
	if err := json.Unmarshal(contents, &entries); err != nil {
		return nil, common.WrapError(common.KindSerialization, err, fmt.Sprintf("parsing device cache %s", path))
	}
	for _, e := range entries {
		c.values[cacheKey{e.ChannelID, e.Key}] = e.Value
	}
	return c, nil
}

// Get returns the cached value for (channelID, key).
func (c *DeviceCache) Get(channelID uint32, key string) (int32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[cacheKey{channelID, key}]
	return v, ok
}

// Put stores the value and rewrites the backing file before returning.
func (c *DeviceCache) Put(channelID uint32, key string, value int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[cacheKey{channelID, key}] = value
	return c.flushLocked()
}

// Delete removes the entry and rewrites the backing file.
func (c *DeviceCache) Delete(channelID uint32, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, cacheKey{channelID, key})
	return c.flushLocked()
}

// Len reports the number of cached entries.
func (c *DeviceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

func (c *DeviceCache) flushLocked() error {
	entries := make([]cacheEntry, 0, len(c.values))
	for k, v := range c.values {
		entries = append(entries, cacheEntry{ChannelID: k.channelID, Key: k.key, Value: v})
	}
	// Stable order keeps the file diffable between runs.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ChannelID != entries[j].ChannelID {
			return entries[i].ChannelID < entries[j].ChannelID
		}
		return entries[i].Key < entries[j].Key
	})

	contents, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return common.WrapError(common.KindSerialization, err, "encoding device cache")
	}
	if err := ioutil.WriteFile(c.path, contents, 0644); err != nil {
		return common.WrapError(common.KindIo, err, fmt.Sprintf("writing device cache %s", c.path))
	}
	return nil
}
