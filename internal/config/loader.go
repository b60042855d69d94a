// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the controller configuration. The
// primary format is JSON; TOML and YAML profiles are accepted for sites
// that manage configs by hand.
package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v2"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

var extensions = []string{".json", ".toml", ".yaml", ".yml"}

// LoadConfig loads the local configuration file based upon the specified
// parameters and returns a pointer to the Config struct which holds all of
// the local configuration settings. The profile and confDir locate the
// file: <confDir>/configuration[-<profile>].<ext>.
func LoadConfig(profile string, confDir string) (*common.Config, error) {
	if len(confDir) == 0 {
		confDir = common.ConfigDirectory
	}
	name := common.ConfigFileName
	if len(profile) > 0 {
		name = name + "-" + profile
	}

	for _, ext := range extensions {
		path := filepath.Join(confDir, name+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := loadConfigFromFile(path)
		if err != nil {
			return nil, err
		}
		applyDefaults(cfg)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return nil, common.NewAppErrorf(common.KindConfigError,
		"no configuration file %s.{json,toml,yaml} under %s", name, confDir)
}

func loadConfigFromFile(path string) (cfg *common.Config, err error) {
	contents, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, common.WrapError(common.KindIo, err, fmt.Sprintf("reading configuration %s", path))
	}

	// The toml package can panic on malformed input; recover into a
	// config error instead.
	defer func() {
		if r := recover(); r != nil {
			cfg = nil
			err = common.NewAppErrorf(common.KindConfigError, "invalid configuration file %s: %v", path, r)
		}
	}()

	cfg = &common.Config{}
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(contents, cfg); err != nil {
			return nil, common.WrapError(common.KindSerialization, err, fmt.Sprintf("parsing %s", path))
		}
	case ".toml":
		if err := toml.Unmarshal(contents, cfg); err != nil {
			return nil, common.WrapError(common.KindConfigError, err, fmt.Sprintf("parsing %s", path))
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(contents, cfg); err != nil {
			return nil, common.WrapError(common.KindConfigError, err, fmt.Sprintf("parsing %s", path))
		}
	default:
		return nil, common.NewAppErrorf(common.KindConfigError, "unsupported configuration format %s", path)
	}
	return cfg, nil
}

func applyDefaults(cfg *common.Config) {
	if cfg.TaskSettings.TimeoutMs == 0 {
		cfg.TaskSettings.TimeoutMs = common.DefaultTaskTimeoutMs
	}
	if cfg.TaskSettings.CheckIntervalMs == 0 {
		cfg.TaskSettings.CheckIntervalMs = common.DefaultTaskCheckIntervalMs
	}
	if cfg.TaskSettings.MaxRetries == 0 {
		cfg.TaskSettings.MaxRetries = common.DefaultTaskMaxRetries
	}
	if cfg.WebServer.Host == "" {
		cfg.WebServer.Host = "0.0.0.0"
	}
	if cfg.WebServer.Port == 0 {
		cfg.WebServer.Port = 8080
	}
}

// Validate rejects configs the runtime could not serve: duplicate ids,
// bad dependency strategies, scene members pointing nowhere and cyclic
// value dependencies.
func Validate(cfg *common.Config) error {
	channelIDs := make(map[uint32]bool, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if channelIDs[ch.ChannelID] {
			return common.NewAppErrorf(common.KindConfigError, "duplicate channel id %d", ch.ChannelID)
		}
		channelIDs[ch.ChannelID] = true
	}

	globalIDs := make(map[uint32]bool, len(cfg.Nodes))
	endpoints := make(map[[2]uint32]uint32, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		if globalIDs[n.GlobalID] {
			return common.NewAppErrorf(common.KindConfigError, "duplicate node global id %d", n.GlobalID)
		}
		globalIDs[n.GlobalID] = true

		ep := [2]uint32{n.ChannelID, n.DeviceID}
		if other, ok := endpoints[ep]; ok {
			return common.NewAppErrorf(common.KindConfigError,
				"nodes %d and %d share endpoint channel %d device %d", other, n.GlobalID, n.ChannelID, n.DeviceID)
		}
		endpoints[ep] = n.GlobalID

		switch n.DependStrategy {
		case "", models.DependStrategyAuto, models.DependStrategyManual:
		default:
			return common.NewAppErrorf(common.KindConfigError,
				"node %d has unknown depend_strategy %q", n.GlobalID, n.DependStrategy)
		}
	}

	sceneNames := make(map[string]bool, len(cfg.Scenes))
	for _, sc := range cfg.Scenes {
		if sceneNames[sc.Name] {
			return common.NewAppErrorf(common.KindConfigError, "duplicate scene %q", sc.Name)
		}
		sceneNames[sc.Name] = true
		for _, member := range sc.Nodes {
			if !globalIDs[member.ID] {
				return common.NewAppErrorf(common.KindConfigError,
					"scene %q references unknown node %d", sc.Name, member.ID)
			}
		}
	}

	return checkDependencyCycles(cfg.Nodes, endpoints)
}

// checkDependencyCycles walks the value-dependency graph. A cycle would
// only surface at runtime as paired task timeouts, so it is rejected at
// load instead.
func checkDependencyCycles(nodes []models.NodeConfig, endpoints map[[2]uint32]uint32) error {
	edges := make(map[uint32][]uint32, len(nodes))
	for _, n := range nodes {
		for _, dep := range n.Depends {
			if dep.ID == nil {
				return common.NewAppErrorf(common.KindConfigError,
					"node %d has a dependency without a target id", n.GlobalID)
			}
			target := *dep.ID
			if dep.ChannelID != nil {
				gid, ok := endpoints[[2]uint32{*dep.ChannelID, *dep.ID}]
				if !ok {
					return common.NewAppErrorf(common.KindConfigError,
						"node %d depends on unknown endpoint channel %d device %d",
						n.GlobalID, *dep.ChannelID, *dep.ID)
				}
				target = gid
			}
			edges[n.GlobalID] = append(edges[n.GlobalID], target)
		}
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[uint32]int, len(edges))

	var visit func(id uint32) error
	visit = func(id uint32) error {
		color[id] = grey
		for _, next := range edges[id] {
			switch color[next] {
			case grey:
				return common.NewAppErrorf(common.KindConfigError,
					"dependency cycle through nodes %d and %d", id, next)
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for id := range edges {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}
