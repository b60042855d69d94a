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
	"github.com/lspcsoft/device-controller/pkg/models"
)

func TestRegistryKnowsEveryProtocolKind(t *testing.T) {
	kinds := Kinds()
	for _, kind := range []string{
		models.StatutePJLink,
		models.StatuteModbus,
		models.StatuteModbusSlave,
		models.StatuteXinkeQ1,
		models.StatuteComputerControl,
		models.StatuteCustom,
		models.StatuteScreenNJLGPLC,
		models.StatuteHSPowerSequencer,
		models.StatuteNovastar,
		models.StatuteMock,
		models.StatuteQNSmartPLC,
		models.StatuteTprisPDU,
		models.StatuteSplicer3D,
		models.StatuteXFusion,
		models.StatuteYKVAP,
	} {
		assert.Contains(t, kinds, kind)
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New("telepathy", 1, nil)
	require.Error(t, err)
	assert.Equal(t, common.KindProtocolError, common.KindOf(err))
}

func TestArgHelpersAcceptJSONAndGoNumbers(t *testing.T) {
	args := map[string]interface{}{
		"from_json": float64(7),
		"from_go":   9,
		"rate":      0.25,
		"flag":      true,
		"name":      "x",
	}
	assert.Equal(t, 7, intArg(args, "from_json", 0))
	assert.Equal(t, 9, intArg(args, "from_go", 0))
	assert.Equal(t, 3, intArg(args, "absent", 3))
	assert.Equal(t, 0.25, floatArg(args, "rate", 0))
	assert.True(t, boolArg(args, "flag", false))
	assert.Equal(t, "x", stringArg(args, "name", ""))

	_, err := requireStringArg(args, "absent")
	assert.Error(t, err)
}

func TestDecodeParamsValidatesShape(t *testing.T) {
	var req struct {
		Addr uint16 `json:"addr"`
	}
	require.NoError(t, decodeParams(map[string]interface{}{"addr": 5}, &req))
	assert.Equal(t, uint16(5), req.Addr)

	err := decodeParams(map[string]interface{}{"addr": "not a number"}, &req)
	assert.Error(t, err)
}
