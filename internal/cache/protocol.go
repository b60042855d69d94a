// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/lspcsoft/device-controller/internal/common"
)

// ProtocolStore is a per-channel opaque JSON key/value file used by drivers
// that authenticate or otherwise persist session state across restarts.
// Backed by <dir>/channel_<id>.json.
type ProtocolStore struct {
	mu        sync.Mutex
	path      string
	channelID uint32
	values    map[string]json.RawMessage
}

// NewProtocolStore opens (or creates) the store for one channel under dir.
func NewProtocolStore(dir string, channelID uint32) (*ProtocolStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, common.WrapError(common.KindIo, err, fmt.Sprintf("creating protocol storage dir %s", dir))
	}
	s := &ProtocolStore{
		path:      filepath.Join(dir, fmt.Sprintf("channel_%d.json", channelID)),
		channelID: channelID,
		values:    make(map[string]json.RawMessage),
	}

	contents, err := ioutil.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, common.WrapError(common.KindIo, err, fmt.Sprintf("reading protocol storage %s", s.path))
	}
	if err := json.Unmarshal(contents, &s.values); err != nil {
		return nil, common.WrapError(common.KindSerialization, err, fmt.Sprintf("parsing protocol storage %s", s.path))
	}
	return s, nil
}

// Get unmarshals the value stored under key into out.
func (s *ProtocolStore) Get(key string, out interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, common.WrapError(common.KindSerialization, err, fmt.Sprintf("decoding protocol storage key %s", key))
	}
	return true, nil
}

// Put stores value under key and rewrites the backing file.
func (s *ProtocolStore) Put(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return common.WrapError(common.KindSerialization, err, fmt.Sprintf("encoding protocol storage key %s", key))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = raw
	return s.flushLocked()
}

// Delete removes key and rewrites the backing file.
func (s *ProtocolStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return s.flushLocked()
}

// Keys lists the stored keys.
func (s *ProtocolStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

func (s *ProtocolStore) flushLocked() error {
	contents, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return common.WrapError(common.KindSerialization, err, "encoding protocol storage")
	}
	if err := ioutil.WriteFile(s.path, contents, 0644); err != nil {
		return common.WrapError(common.KindIo, err, fmt.Sprintf("writing protocol storage %s", s.path))
	}
	return nil
}
