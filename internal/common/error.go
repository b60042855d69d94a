// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the controller can produce. Each layer
// maps its faults onto exactly one kind; the HTTP layer maps kinds onto
// envelope state codes.
type ErrorKind string

const (
	KindDeviceNotFound   ErrorKind = "DeviceNotFound"
	KindChannelNotFound  ErrorKind = "ChannelNotFound"
	KindProtocolError    ErrorKind = "ProtocolError"
	KindConnectionError  ErrorKind = "ConnectionError"
	KindTimeout          ErrorKind = "Timeout"
	KindConfigError      ErrorKind = "ConfigError"
	KindDependencyNotMet ErrorKind = "DependencyNotMet"
	KindIo               ErrorKind = "Io"
	KindSerialization    ErrorKind = "Serialization"
	KindOther            ErrorKind = "Other"
)

// AppError is the error type shared by all layers.
type AppError struct {
	kind    ErrorKind
	message string
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *AppError) Unwrap() error { return e.cause }

// Kind returns the classification of the error.
func (e *AppError) Kind() ErrorKind { return e.kind }

// Message returns the bare message without the kind prefix, for the HTTP
// envelope.
func (e *AppError) Message() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func NewAppError(kind ErrorKind, message string) *AppError {
	return &AppError{kind: kind, message: message}
}

func NewAppErrorf(kind ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{kind: kind, message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, cause error, message string) *AppError {
	return &AppError{kind: kind, message: message, cause: cause}
}

// KindOf extracts the ErrorKind of err, or KindOther when err carries none.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindOther
}

// Envelope state codes. Zero is success; the rest mirror the controller's
// public error contract.
const (
	CodeSuccess          int32 = 0
	CodeConfigError      int32 = 400
	CodeDeviceNotFound   int32 = 30001
	CodeChannelNotFound  int32 = 30002
	CodeTimeout          int32 = 30003
	CodeDependencyNotMet int32 = 30004
	CodeInternal         int32 = 30006
)

// CodeFor maps an error to its envelope state code.
func CodeFor(err error) int32 {
	if err == nil {
		return CodeSuccess
	}
	switch KindOf(err) {
	case KindDeviceNotFound:
		return CodeDeviceNotFound
	case KindChannelNotFound:
		return CodeChannelNotFound
	case KindTimeout:
		return CodeTimeout
	case KindDependencyNotMet:
		return CodeDependencyNotMet
	case KindConfigError:
		return CodeConfigError
	default:
		return CodeInternal
	}
}

// MessageFor returns the user-visible message for the envelope.
func MessageFor(err error) string {
	if err == nil {
		return "success"
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}
