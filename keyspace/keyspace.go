// Copyright 2014 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License. See the AUTHORS file
// for names of contributors.

// Package keyspace maps keys to slice numbers and defines the comparator
// byte encodings used by the back-end store.
package keyspace

import (
	"encoding/binary"
	"math"

	"github.com/hpc-io/rangekv/rkerr"
)

// KeyType enumerates the key types an index may be created with. Key-type
// identity is fixed at index creation and is an invariant checked on reopen.
type KeyType int32

const (
	SignedInt32 KeyType = iota
	SignedInt64
	Float32Key
	Float64Key
	ByteString
	UnicodeString
)

func (t KeyType) String() string {
	switch t {
	case SignedInt32:
		return "SignedInt32"
	case SignedInt64:
		return "SignedInt64"
	case Float32Key:
		return "Float32"
	case Float64Key:
		return "Float64"
	case ByteString:
		return "ByteString"
	case UnicodeString:
		return "UnicodeString"
	default:
		return "UnknownKeyType"
	}
}

// Valid reports whether t is a recognized key type.
func (t KeyType) Valid() bool {
	return t >= SignedInt32 && t <= UnicodeString
}

// BytePrefixLen is the fixed number of leading bytes used to map a
// ByteString/UnicodeString key to a normalized uint64. This is the single
// documented authority for N referenced by spec's slice arithmetic: any
// code that needs the byte-key normalization width must use this constant.
const BytePrefixLen = 8

// IsFloatKey is the single authority for whether a key type's statistics
// use the floating family (Float32/Float64) or the integer family
// (everything else, including ByteString/UnicodeString).
func IsFloatKey(t KeyType) bool {
	return t == Float32Key || t == Float64Key
}

// NormalizeInt normalizes an integer-family key (SignedInt32, SignedInt64,
// ByteString, UnicodeString) to an order-preserving uint64.
func NormalizeInt(key []byte, t KeyType) (uint64, error) {
	switch t {
	case SignedInt32:
		if len(key) != 4 {
			return 0, rkerr.E(rkerr.InvalidArgument, "SignedInt32 key must be 4 bytes, got %d", len(key))
		}
		v := int32(binary.BigEndian.Uint32(key))
		return uint64(uint32(v) ^ 0x80000000), nil
	case SignedInt64:
		if len(key) != 8 {
			return 0, rkerr.E(rkerr.InvalidArgument, "SignedInt64 key must be 8 bytes, got %d", len(key))
		}
		v := int64(binary.BigEndian.Uint64(key))
		return uint64(v) ^ 0x8000000000000000, nil
	case ByteString, UnicodeString:
		return prefixToUint64(key), nil
	default:
		return 0, rkerr.E(rkerr.InvalidArgument, "key type %s is not integer-family", t)
	}
}

// NormalizeFloat normalizes a floating-family key (Float32, Float64) to the
// widest available floating representation, rejecting NaN.
func NormalizeFloat(key []byte, t KeyType) (float64, error) {
	var v float64
	switch t {
	case Float32Key:
		if len(key) != 4 {
			return 0, rkerr.E(rkerr.InvalidArgument, "Float32 key must be 4 bytes, got %d", len(key))
		}
		v = float64(math.Float32frombits(binary.BigEndian.Uint32(key)))
	case Float64Key:
		if len(key) != 8 {
			return 0, rkerr.E(rkerr.InvalidArgument, "Float64 key must be 8 bytes, got %d", len(key))
		}
		v = math.Float64frombits(binary.BigEndian.Uint64(key))
	default:
		return 0, rkerr.E(rkerr.InvalidArgument, "key type %s is not floating-family", t)
	}
	if math.IsNaN(v) {
		return 0, rkerr.E(rkerr.InvalidArgument, "NaN key values are rejected")
	}
	return v, nil
}

// prefixToUint64 interprets up to the leading BytePrefixLen bytes of key as
// a big-endian unsigned integer, zero-padded on the right if key is
// shorter than BytePrefixLen. This is a deterministic monotone mapping:
// lexicographically ordered byte strings map to numerically ordered
// uint64s over their shared prefix.
func prefixToUint64(key []byte) uint64 {
	var buf [BytePrefixLen]byte
	n := copy(buf[:], key)
	_ = n
	return binary.BigEndian.Uint64(buf[:])
}

// SliceOf computes the slice number for key under the given key type and
// slice size. sliceSize must be a positive integer.
func SliceOf(key []byte, t KeyType, sliceSize uint64) (uint64, error) {
	if sliceSize == 0 {
		return 0, rkerr.E(rkerr.InvalidArgument, "slice size must be positive")
	}
	if !t.Valid() {
		return 0, rkerr.E(rkerr.InvalidArgument, "unrecognized key type %d", t)
	}
	if IsFloatKey(t) {
		v, err := NormalizeFloat(key, t)
		if err != nil {
			return 0, err
		}
		return uint64(math.Floor(v / float64(sliceSize))), nil
	}
	v, err := NormalizeInt(key, t)
	if err != nil {
		return 0, err
	}
	return v / sliceSize, nil
}

// EncodeComparable returns the byte encoding of key used by the back-end
// store's comparator so that ordered iteration matches numeric order for
// numeric key types. ByteString and UnicodeString keys are returned
// unmodified: raw byte lexicographic order already matches their intended
// order.
func EncodeComparable(key []byte, t KeyType) ([]byte, error) {
	switch t {
	case SignedInt32:
		n, err := NormalizeInt(key, t)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, uint32(n))
		return out, nil
	case SignedInt64:
		n, err := NormalizeInt(key, t)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, n)
		return out, nil
	case Float32Key, Float64Key:
		v, err := NormalizeFloat(key, t)
		if err != nil {
			return nil, err
		}
		// Bias the IEEE754 bit pattern so that lexicographic order over the
		// resulting bytes matches numeric order, including across the
		// positive/negative boundary.
		bits := math.Float64bits(v)
		if v >= 0 {
			bits ^= 0x8000000000000000
		} else {
			bits = ^bits
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, bits)
		return out, nil
	case ByteString, UnicodeString:
		return key, nil
	default:
		return nil, rkerr.E(rkerr.InvalidArgument, "unrecognized key type %d", t)
	}
}
