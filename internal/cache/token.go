// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"fmt"
	"sync"
)

// TokenCache reuses session tokens for drivers that authenticate (iBMC and
// similar). Two tiers: an in-memory node -> token map in front of a
// write-through to the channel's protocol store under token_<node_id>.
type TokenCache struct {
	mu     sync.Mutex
	tokens map[uint32]string
	store  *ProtocolStore
}

func NewTokenCache(store *ProtocolStore) *TokenCache {
	return &TokenCache{
		tokens: make(map[uint32]string),
		store:  store,
	}
}

// Get returns the cached token for nodeID, falling back to the persistent
// store on a memory miss.
func (c *TokenCache) Get(nodeID uint32) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token, ok := c.tokens[nodeID]; ok {
		return token, true
	}
	if c.store == nil {
		return "", false
	}
	var token string
	ok, err := c.store.Get(c.storeKey(nodeID), &token)
	if err != nil || !ok {
		return "", false
	}
	c.tokens[nodeID] = token
	return token, true
}

// Put caches the token in memory and writes it through to the store.
func (c *TokenCache) Put(nodeID uint32, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[nodeID] = token
	if c.store == nil {
		return nil
	}
	return c.store.Put(c.storeKey(nodeID), token)
}

// Invalidate drops the token from both tiers, forcing re-authentication.
func (c *TokenCache) Invalidate(nodeID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, nodeID)
	if c.store == nil {
		return nil
	}
	return c.store.Delete(c.storeKey(nodeID))
}

func (c *TokenCache) storeKey(nodeID uint32) string {
	return fmt.Sprintf("token_%d", nodeID)
}
