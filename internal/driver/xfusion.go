// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// xfusion driver: server power control through the iBMC Redfish API.
// Session tokens are cached in the two-tier token cache so restarts and
// repeated writes reuse the session instead of re-authenticating.
package driver

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/lspcsoft/device-controller/internal/cache"
	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

func init() {
	Register(models.StatuteXFusion, NewXFusionDriver)
}

type XFusionDriver struct {
	channelID uint32
	baseURL   string
	username  string
	password  string
	client    *http.Client
	tokens    *cache.TokenCache
}

func NewXFusionDriver(channelID uint32, args map[string]interface{}) (models.ProtocolDriver, error) {
	host, err := requireStringArg(args, "address")
	if err != nil {
		return nil, err
	}
	username, err := requireStringArg(args, "username")
	if err != nil {
		return nil, err
	}
	password, err := requireStringArg(args, "password")
	if err != nil {
		return nil, err
	}

	storageDir := stringArg(args, "storage_dir", common.ProtocolStorageDir)
	store, err := cache.NewProtocolStore(storageDir, channelID)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(intArg(args, "timeout_ms", 5000)) * time.Millisecond
	return &XFusionDriver{
		channelID: channelID,
		baseURL:   fmt.Sprintf("https://%s", host),
		username:  username,
		password:  password,
		tokens:    cache.NewTokenCache(store),
		client: &http.Client{
			Timeout: timeout,
			// iBMCs ship self-signed certificates.
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		},
	}, nil
}

func (d *XFusionDriver) Name() string { return models.StatuteXFusion }

// login opens a Redfish session and caches its token for the node.
func (d *XFusionDriver) login(deviceID uint32) (string, error) {
	body, _ := json.Marshal(map[string]string{"UserName": d.username, "Password": d.password})
	resp, err := d.client.Post(d.baseURL+"/redfish/v1/SessionService/Sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", common.WrapError(common.KindConnectionError, err, "ibmc session login")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", common.NewAppErrorf(common.KindProtocolError, "ibmc login rejected with %d", resp.StatusCode)
	}
	token := resp.Header.Get("X-Auth-Token")
	if token == "" {
		return "", common.NewAppError(common.KindProtocolError, "ibmc login returned no token")
	}
	if err := d.tokens.Put(deviceID, token); err != nil {
		common.LoggingClient.Warn(fmt.Sprintf("channel %d: persisting ibmc token failed: %v", d.channelID, err))
	}
	return token, nil
}

// request performs one authenticated call, re-logging in once on a 401.
func (d *XFusionDriver) request(deviceID uint32, method, path string, payload interface{}) (map[string]interface{}, error) {
	token, ok := d.tokens.Get(deviceID)
	if !ok {
		var err error
		if token, err = d.login(deviceID); err != nil {
			return nil, err
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		var body []byte
		if payload != nil {
			body, _ = json.Marshal(payload)
		}
		req, err := http.NewRequest(method, d.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, common.WrapError(common.KindOther, err, "building ibmc request")
		}
		req.Header.Set("X-Auth-Token", token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, common.WrapError(common.KindConnectionError, err, "ibmc request")
		}
		raw, _ := ioutil.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			_ = d.tokens.Invalidate(deviceID)
			if token, err = d.login(deviceID); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, common.NewAppErrorf(common.KindProtocolError, "ibmc %s %s failed with %d", method, path, resp.StatusCode)
		}
		out := make(map[string]interface{})
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &out); err != nil {
				return nil, common.WrapError(common.KindSerialization, err, "decoding ibmc response")
			}
		}
		return out, nil
	}
	return nil, common.NewAppError(common.KindProtocolError, "ibmc authentication loop")
}

func (d *XFusionDriver) systemPath(deviceID uint32) string {
	return fmt.Sprintf("/redfish/v1/Systems/%d", deviceID)
}

// Read reports server power: 1 on, 0 off.
func (d *XFusionDriver) Read(deviceID uint32) (int32, error) {
	out, err := d.request(deviceID, http.MethodGet, d.systemPath(deviceID), nil)
	if err != nil {
		return 0, err
	}
	if state, _ := out["PowerState"].(string); state == "On" {
		return 1, nil
	}
	return 0, nil
}

// Write switches server power: non-zero on, zero graceful shutdown.
func (d *XFusionDriver) Write(deviceID uint32, value int32) error {
	resetType := "GracefulShutdown"
	if value != 0 {
		resetType = "On"
	}
	_, err := d.request(deviceID, http.MethodPost,
		d.systemPath(deviceID)+"/Actions/ComputerSystem.Reset",
		map[string]string{"ResetType": resetType})
	return err
}

func (d *XFusionDriver) Execute(command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case "reset":
		id := uint32(intArg(params, "device_id", 1))
		resetType := stringArg(params, "reset_type", "ForceRestart")
		if _, err := d.request(id, http.MethodPost,
			d.systemPath(id)+"/Actions/ComputerSystem.Reset",
			map[string]string{"ResetType": resetType}); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	case "system_info":
		id := uint32(intArg(params, "device_id", 1))
		out, err := d.request(id, http.MethodGet, d.systemPath(id), nil)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success", "data": out}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "unknown xfusion command %q", command)
	}
}

func (d *XFusionDriver) GetStatus() (map[string]interface{}, error) {
	return map[string]interface{}{
		"protocol": models.StatuteXFusion,
		"base_url": d.baseURL,
	}, nil
}

func (d *XFusionDriver) CallMethod(name string, args map[string]interface{}) (map[string]interface{}, error) {
	switch name {
	case "invalidate_token":
		id := uint32(intArg(args, "device_id", 1))
		if err := d.tokens.Invalidate(id); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": "success"}, nil
	default:
		return nil, errUnsupportedMethod(models.StatuteXFusion, name)
	}
}

func (d *XFusionDriver) GetMethods() []string { return []string{"invalidate_token"} }
