// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lspcsoft/device-controller/internal/api"
	"github.com/lspcsoft/device-controller/internal/common"
	"github.com/lspcsoft/device-controller/internal/config"
	"github.com/lspcsoft/device-controller/internal/controller"
)

var (
	profile string
	confDir string
)

func main() {
	flag.StringVar(&profile, "profile", "", "Specify a profile other than default.")
	flag.StringVar(&profile, "p", "", "Specify a profile other than default.")
	flag.StringVar(&confDir, "confdir", "", "Specify local configuration directory")
	flag.StringVar(&confDir, "c", "", "Specify local configuration directory")
	flag.Parse()

	cfg, err := config.LoadConfig(profile, confDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	common.InitLogger(cfg.Log)

	c, err := controller.New(cfg)
	if err != nil {
		common.LoggingClient.Error(fmt.Sprintf("initializing controller failed: %v", err))
		os.Exit(1)
	}

	server := api.NewServer(c)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(cfg.WebServer)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		common.LoggingClient.Info(fmt.Sprintf("received signal %v, shutting down", sig))
	case err := <-errCh:
		common.LoggingClient.Error(fmt.Sprintf("http server failed: %v", err))
	}

	c.Stop()
}
