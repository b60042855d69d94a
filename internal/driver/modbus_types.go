// -*- Mode: Go; indent-tabs-mode: t -*-
//
// Copyright (C) 2023-2024 LSPC Technologies
//
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"math"

	"github.com/lspcsoft/device-controller/internal/common"
)

// DataType is the typed Modbus data model. Every type knows its register
// footprint; Bool is coil-only, all others are register reads.
type DataType string

const (
	TypeUint16    DataType = "uint16"
	TypeInt16     DataType = "int16"
	TypeUint32    DataType = "uint32"
	TypeInt32     DataType = "int32"
	TypeUint32LE  DataType = "uint32le"
	TypeInt32LE   DataType = "int32le"
	TypeFloat32   DataType = "float32"
	TypeFloat32LE DataType = "float32le"
	TypeFloat64   DataType = "float64"
	TypeBool      DataType = "bool"
)

// ParseDataType validates a type tag from a data point or command. The
// empty tag defaults to uint16.
func ParseDataType(tag string) (DataType, error) {
	switch DataType(tag) {
	case "":
		return TypeUint16, nil
	case TypeUint16, TypeInt16, TypeUint32, TypeInt32, TypeUint32LE, TypeInt32LE,
		TypeFloat32, TypeFloat32LE, TypeFloat64, TypeBool:
		return DataType(tag), nil
	default:
		return "", common.NewAppErrorf(common.KindConfigError, "unknown modbus data type %q", tag)
	}
}

// RegisterCount is the number of 16-bit registers the type occupies. Bool
// occupies one coil.
func (t DataType) RegisterCount() uint16 {
	switch t {
	case TypeUint32, TypeInt32, TypeUint32LE, TypeInt32LE, TypeFloat32, TypeFloat32LE:
		return 2
	case TypeFloat64:
		return 4
	default:
		return 1
	}
}

// IsCoil reports whether the type lives in coil space.
func (t DataType) IsCoil() bool { return t == TypeBool }

// wordSwapped reports whether the 32-bit type stores its low word first.
func (t DataType) wordSwapped() bool {
	return t == TypeUint32LE || t == TypeInt32LE || t == TypeFloat32LE
}

// Encode turns a value into its register representation. Bool values are
// handled by the coil path and never reach Encode.
func (t DataType) Encode(value float64) ([]uint16, error) {
	switch t {
	case TypeUint16:
		// Via int64 so negative operator values take their two's-complement
		// form instead of an implementation-defined float-to-unsigned result.
		return []uint16{uint16(int64(value))}, nil
	case TypeInt16:
		return []uint16{uint16(int16(value))}, nil
	case TypeUint32, TypeUint32LE:
		return t.pack32(uint32(int64(value))), nil
	case TypeInt32, TypeInt32LE:
		return t.pack32(uint32(int32(value))), nil
	case TypeFloat32, TypeFloat32LE:
		return t.pack32(math.Float32bits(float32(value))), nil
	case TypeFloat64:
		bits := math.Float64bits(value)
		return []uint16{
			uint16(bits >> 48),
			uint16(bits >> 32),
			uint16(bits >> 16),
			uint16(bits),
		}, nil
	default:
		return nil, common.NewAppErrorf(common.KindProtocolError, "type %s cannot be register-encoded", t)
	}
}

// Decode reconstructs a value from its register representation.
func (t DataType) Decode(regs []uint16) (float64, error) {
	if len(regs) < int(t.RegisterCount()) {
		return 0, common.NewAppErrorf(common.KindProtocolError,
			"type %s needs %d registers, got %d", t, t.RegisterCount(), len(regs))
	}
	switch t {
	case TypeUint16:
		return float64(regs[0]), nil
	case TypeInt16:
		return float64(int16(regs[0])), nil
	case TypeUint32, TypeUint32LE:
		return float64(t.unpack32(regs)), nil
	case TypeInt32, TypeInt32LE:
		return float64(int32(t.unpack32(regs))), nil
	case TypeFloat32, TypeFloat32LE:
		return float64(math.Float32frombits(t.unpack32(regs))), nil
	case TypeFloat64:
		bits := uint64(regs[0])<<48 | uint64(regs[1])<<32 | uint64(regs[2])<<16 | uint64(regs[3])
		return math.Float64frombits(bits), nil
	default:
		return 0, common.NewAppErrorf(common.KindProtocolError, "type %s cannot be register-decoded", t)
	}
}

func (t DataType) pack32(bits uint32) []uint16 {
	hi, lo := uint16(bits>>16), uint16(bits)
	if t.wordSwapped() {
		return []uint16{lo, hi}
	}
	return []uint16{hi, lo}
}

func (t DataType) unpack32(regs []uint16) uint32 {
	if t.wordSwapped() {
		return uint32(regs[1])<<16 | uint32(regs[0])
	}
	return uint32(regs[0])<<16 | uint32(regs[1])
}
