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

	"github.com/lspcsoft/device-controller/internal/common"
)

func TestAsciiFrameRoundTrip(t *testing.T) {
	request := []byte{0x01, 0x03, 0x00, 0x0A, 0x00, 0x01}
	frame := asciiFrame(request)

	assert.Equal(t, byte(':'), frame[0])
	assert.Equal(t, "\r\n", string(frame[len(frame)-2:]))

	payload, err := parseAsciiReply(frame)
	require.NoError(t, err)
	assert.Equal(t, request, payload)
}

func TestLRCKnownValue(t *testing.T) {
	// 01 03 00 0A 00 01 sums to 0x0F, LRC is the two's complement.
	assert.Equal(t, byte(0xF1), lrc([]byte{0x01, 0x03, 0x00, 0x0A, 0x00, 0x01}))
}

func TestParseAsciiReplyRejectsBadLRC(t *testing.T) {
	_, err := parseAsciiReply([]byte(":010300\r\n"))
	require.Error(t, err)
	assert.Equal(t, common.KindProtocolError, common.KindOf(err))
}

func TestParseAsciiReplyDetectsException(t *testing.T) {
	payload := []byte{0x01, 0x83, 0x02}
	_, err := parseAsciiReply(asciiFrame(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plc exception 2")
}

func TestParseAsciiReplyRejectsMissingColon(t *testing.T) {
	_, err := parseAsciiReply([]byte("010300\r\n"))
	assert.Error(t, err)
}

func TestNovastarSceneFrameChecksum(t *testing.T) {
	frame := sceneFrame(2, 5)
	require.Len(t, frame, 8)
	assert.Equal(t, []byte{0x55, 0xAA, 0x00, 0x02, 0x01, 0x05}, frame[:6])

	var sum uint16
	for _, b := range frame[:6] {
		sum += uint16(b)
	}
	assert.Equal(t, byte(sum>>8), frame[6])
	assert.Equal(t, byte(sum), frame[7])
}

func TestNovastarRejectsSceneZero(t *testing.T) {
	d, err := NewNovastarDriver(1, map[string]interface{}{"address": "127.0.0.1"})
	require.NoError(t, err)
	err = d.Write(1, 0)
	require.Error(t, err)
	assert.Equal(t, common.KindConfigError, common.KindOf(err))
}

func TestCustomDriverValidatesRules(t *testing.T) {
	_, err := NewCustomDriver(1, map[string]interface{}{
		"address": "127.0.0.1", "port": 4001,
		"rules": []interface{}{
			map[string]interface{}{"value": 1, "send": "not hex"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, common.KindConfigError, common.KindOf(err))

	_, err = NewCustomDriver(1, map[string]interface{}{
		"address": "127.0.0.1", "port": 4001,
	})
	require.Error(t, err)
}

func TestCustomDriverUnknownValue(t *testing.T) {
	d, err := NewCustomDriver(1, map[string]interface{}{
		"address": "127.0.0.1", "port": 4001,
		"rules": []interface{}{
			map[string]interface{}{"value": 1, "send": "a1b2"},
		},
	})
	require.NoError(t, err)

	err = d.Write(1, 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rule for value 99")
}
