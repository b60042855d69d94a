// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func TestEventsWebsocketStreamsBusEvents(t *testing.T) {
	s := testServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := strings.Replace(ts.URL, "http://", "ws://", 1) + common.APIEventsRoute
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the handler a moment to attach its bus subscription.
	time.Sleep(50 * time.Millisecond)

	// Trigger a node state change over plain HTTP.
	resp, err := http.Post(ts.URL+common.APIDevicePrefix+"/write", "application/json",
		strings.NewReader(`{"global_id": 100, "value": 11}`))
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var evt models.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, models.EventNodeStateChanged, evt.Type)
	assert.Equal(t, uint32(100), evt.GlobalID)
	assert.Equal(t, int32(11), evt.NewValue)
}

func TestEventsWebsocketClosesCleanly(t *testing.T) {
	s := testServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	url := strings.Replace(ts.URL, "http://", "ws://", 1) + common.APIEventsRoute
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}
