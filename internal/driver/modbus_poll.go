// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
	cron "gopkg.in/robfig/cron.v2"

	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/pkg/models"
)

// modbusPoller runs the channel's auto_call entries as periodic background
// jobs. Each tick opens its own connection; failures log at warn and the
// loop continues. Poll results fill the register cache only and are never
// surfaced to operators.
type modbusPoller struct {
	driver *ModbusDriver
	specs  []models.AutoPollSpec
	cr     *cron.Cron
}

func newModbusPoller(d *ModbusDriver, specs []models.AutoPollSpec) *modbusPoller {
	return &modbusPoller{driver: d, specs: specs}
}

func (p *modbusPoller) start() error {
	p.cr = cron.New()
	for _, spec := range p.specs {
		spec := spec
		if spec.IntervalMs == 0 {
			return common.NewAppErrorf(common.KindConfigError,
				"auto_call entry for channel %d has no interval", p.driver.channelID)
		}
		schedule := fmt.Sprintf("@every %s", time.Duration(spec.IntervalMs)*time.Millisecond)
		if _, err := p.cr.AddFunc(schedule, func() { p.pollOnce(spec) }); err != nil {
			return common.WrapError(common.KindConfigError, err,
				fmt.Sprintf("registering auto_call %s for channel %d", spec.Function, p.driver.channelID))
		}
	}
	p.cr.Start()
	common.LoggingClient.Info(fmt.Sprintf("channel %d: started %d modbus auto-poll jobs", p.driver.channelID, len(p.specs)))
	return nil
}

func (p *modbusPoller) stop() {
	if p.cr != nil {
		p.cr.Stop()
	}
}

// pollOnce reads one configured block into the register cache.
func (p *modbusPoller) pollOnce(spec models.AutoPollSpec) {
	d := p.driver
	err := d.transact(func(c modbus.Client) error {
		switch spec.Function {
		case "holding", "":
			raw, err := c.ReadHoldingRegisters(spec.StartAddr, spec.Count)
			if err != nil {
				return mapModbusError(err)
			}
			d.cache.StoreBlock(spec.StartAddr, unpackRegisters(raw, spec.Count), cacheTagRegister)
		case "input":
			raw, err := c.ReadInputRegisters(spec.StartAddr, spec.Count)
			if err != nil {
				return mapModbusError(err)
			}
			d.cache.StoreBlock(spec.StartAddr, unpackRegisters(raw, spec.Count), cacheTagRegister)
		case "coil":
			raw, err := c.ReadCoils(spec.StartAddr, spec.Count)
			if err != nil {
				return mapModbusError(err)
			}
			d.cache.StoreBlock(spec.StartAddr, unpackBits(raw, spec.Count), cacheTagCoil)
		case "discrete":
			raw, err := c.ReadDiscreteInputs(spec.StartAddr, spec.Count)
			if err != nil {
				return mapModbusError(err)
			}
			d.cache.StoreBlock(spec.StartAddr, unpackBits(raw, spec.Count), cacheTagCoil)
		default:
			return common.NewAppErrorf(common.KindConfigError, "unknown auto_call function %q", spec.Function)
		}
		return nil
	})
	if err != nil {
		common.LoggingClient.Warn(fmt.Sprintf("channel %d: auto-poll %s@%d failed: %v",
			d.channelID, spec.Function, spec.StartAddr, err))
	}
}

// autoPollSpecs extracts the merged auto_call entries from driver args.
// The value may be typed specs (from the channel manager) or raw decoded
// JSON, so it is round-tripped through encoding/json.
func autoPollSpecs(args map[string]interface{}) ([]models.AutoPollSpec, error) {
	v, ok := args["auto_call"]
	if !ok || v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, common.WrapError(common.KindSerialization, err, "encoding auto_call specs")
	}
	var specs []models.AutoPollSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, common.WrapError(common.KindConfigError, err, "bad auto_call specs")
	}
	return specs, nil
}
