// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/lspcsoft/device-controller/internal/common"
)

const defaultLinkTimeout = 3 * time.Second

// tcpTransact opens a short-lived TCP connection, writes payload and, when
// expectReply is set, reads one reply chunk. The thin ASCII/byte protocol
// drivers all speak this request/response shape.
func tcpTransact(address string, timeout time.Duration, payload []byte, expectReply bool) ([]byte, error) {
	if timeout <= 0 {
		timeout = defaultLinkTimeout
	}
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, common.WrapError(common.KindConnectionError, err, fmt.Sprintf("connecting to %s", address))
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, common.WrapError(common.KindIo, err, "setting link deadline")
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, mapLinkError(err, address)
	}
	if !expectReply {
		return nil, nil
	}

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, mapLinkError(err, address)
	}
	return buf[:n], nil
}

// udpSend fires one datagram without waiting for a reply.
func udpSend(address string, payload []byte) error {
	conn, err := net.Dial("udp", address)
	if err != nil {
		return common.WrapError(common.KindConnectionError, err, fmt.Sprintf("opening udp to %s", address))
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return common.WrapError(common.KindIo, err, fmt.Sprintf("sending udp to %s", address))
	}
	return nil
}

func mapLinkError(err error, address string) error {
	if netErr, ok := errors.Cause(err).(net.Error); ok && netErr.Timeout() {
		return common.WrapError(common.KindTimeout, err, fmt.Sprintf("i/o timeout on %s", address))
	}
	return common.WrapError(common.KindConnectionError, err, fmt.Sprintf("link failure on %s", address))
}
