// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStitchesMultiRegisterTypes(t *testing.T) {
	c := newRegisterCache()
	regs, err := TypeFloat32.Encode(12.5)
	require.NoError(t, err)
	c.StoreBlock(100, regs, cacheTagRegister)

	v, ok := c.ReadTyped(100, TypeFloat32)
	require.True(t, ok)
	assert.Equal(t, 12.5, v)
}

func TestCacheMissesOnPartialBlock(t *testing.T) {
	c := newRegisterCache()
	c.StoreBlock(100, []uint16{0x1234}, cacheTagRegister)

	// The second register of the 32-bit value is absent.
	_, ok := c.ReadTyped(100, TypeUint32)
	assert.False(t, ok)

	v, ok := c.ReadTyped(100, TypeUint16)
	require.True(t, ok)
	assert.Equal(t, float64(0x1234), v)
}

func TestCacheSeparatesCoilAndRegisterSpace(t *testing.T) {
	c := newRegisterCache()
	c.StoreBlock(5, []uint16{1}, cacheTagCoil)

	_, ok := c.ReadTyped(5, TypeUint16)
	assert.False(t, ok)

	v, ok := c.ReadTyped(5, TypeBool)
	require.True(t, ok)
	assert.Equal(t, float64(1), v)
}

func TestCacheOverwritesOnNewBlock(t *testing.T) {
	c := newRegisterCache()
	c.StoreBlock(0, []uint16{10, 20, 30}, cacheTagRegister)
	c.StoreBlock(1, []uint16{99}, cacheTagRegister)

	v, ok := c.ReadTyped(1, TypeUint16)
	require.True(t, ok)
	assert.Equal(t, float64(99), v)
	assert.Equal(t, 3, c.Len())
}
