// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAppErrorKindAndMessage(t *testing.T) {
	err := NewAppErrorf(KindDeviceNotFound, "node %d not found", 7)
	assert.Equal(t, KindDeviceNotFound, KindOf(err))
	assert.Equal(t, "DeviceNotFound: node 7 not found", err.Error())
	assert.Equal(t, "node 7 not found", err.Message())
}

func TestWrapErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(KindConnectionError, cause, "dialing projector")

	assert.Equal(t, KindConnectionError, KindOf(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Cause(errors.Unwrap(err)))
}

func TestKindOfSurvivesWrapping(t *testing.T) {
	inner := NewAppError(KindTimeout, "no reply")
	outer := errors.Wrap(inner, "reading node")
	assert.Equal(t, KindTimeout, KindOf(outer))

	assert.Equal(t, KindOther, KindOf(errors.New("plain")))
}

func TestCodeForMapping(t *testing.T) {
	assert.Equal(t, CodeSuccess, CodeFor(nil))
	assert.Equal(t, CodeDeviceNotFound, CodeFor(NewAppError(KindDeviceNotFound, "x")))
	assert.Equal(t, CodeChannelNotFound, CodeFor(NewAppError(KindChannelNotFound, "x")))
	assert.Equal(t, CodeTimeout, CodeFor(NewAppError(KindTimeout, "x")))
	assert.Equal(t, CodeDependencyNotMet, CodeFor(NewAppError(KindDependencyNotMet, "x")))
	assert.Equal(t, CodeConfigError, CodeFor(NewAppError(KindConfigError, "x")))
	assert.Equal(t, CodeInternal, CodeFor(NewAppError(KindProtocolError, "x")))
	assert.Equal(t, CodeInternal, CodeFor(errors.New("plain")))
}

func TestMessageFor(t *testing.T) {
	assert.Equal(t, "success", MessageFor(nil))
	assert.Equal(t, "node 7 not found", MessageFor(NewAppErrorf(KindDeviceNotFound, "node %d not found", 7)))
	assert.Equal(t, "plain", MessageFor(errors.New("plain")))
}
