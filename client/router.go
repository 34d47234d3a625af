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

// Package client resolves keys to the rank that owns them, the way
// kv.DistKV resolved a key to a replica via its range cache, but against
// a fixed range-server membership and slice-modulo ownership rather than
// a gossiped range descriptor table.
package client

import (
	"github.com/hpc-io/rangekv/index"
	"github.com/hpc-io/rangekv/keyspace"
	"github.com/hpc-io/rangekv/rkerr"
)

// Router resolves keys of one index to the rank that owns them.
type Router struct {
	idx *index.Index
}

// NewRouter returns a Router for idx. idx.Servers must already be
// populated (true of any *index.Index returned by index.Registry.
// CreateRemote).
func NewRouter(idx *index.Index) *Router {
	return &Router{idx: idx}
}

// rangeServerNum returns the 1-based range server number that owns
// sliceNum by round-robin assignment: a slice belongs to
// (sliceNum mod numRangeServers) + 1.
func (r *Router) rangeServerNum(sliceNum uint64) uint32 {
	return uint32(sliceNum%uint64(r.idx.NumRangeServers)) + 1
}

func (r *Router) rankForServerNum(num uint32) (int, bool) {
	for _, e := range r.idx.Servers.Entries {
		if e.RangeServerNum == num {
			return e.Rank, true
		}
	}
	return 0, false
}

// Route resolves key to the rank owning its slice.
func (r *Router) Route(key []byte) (rank int, err error) {
	if r.idx.NumRangeServers == 0 {
		return 0, rkerr.E(rkerr.InvalidArgument, "index has no range servers")
	}
	sliceNum, err := keyspace.SliceOf(key, r.idx.KeyType, r.idx.SliceSize)
	if err != nil {
		return 0, err
	}
	num := r.rangeServerNum(sliceNum)
	rank, ok := r.rankForServerNum(num)
	if !ok {
		return 0, rkerr.E(rkerr.CommunicationError, "no rank owns range server number %d", num)
	}
	return rank, nil
}

// RouteRange resolves the rank that should begin serving an ordered
// range query starting at start: the owner of the smallest slice whose
// maximum observed key is at least start, breaking ties by the lowest
// range server number. ok is false when no slice's stats qualify,
// meaning the caller should fall back to broadcasting the query to every
// range server.
func (r *Router) RouteRange(start []byte) (rank int, ok bool) {
	norm, err := normalize(r.idx.KeyType, start)
	if err != nil {
		return 0, false
	}

	var bestSlice uint64
	var bestNum uint32
	found := false
	for _, slice := range r.idx.Stats.Slices() {
		e, exists := r.idx.Stats.Get(slice)
		if !exists {
			continue
		}
		max := e.IMax
		if keyspace.IsFloatKey(r.idx.KeyType) {
			if e.DMax < norm.f {
				continue
			}
		} else if max < norm.u {
			continue
		}
		num := r.rangeServerNum(slice)
		if !found || slice < bestSlice || (slice == bestSlice && num < bestNum) {
			bestSlice, bestNum, found = slice, num, true
		}
	}
	if !found {
		return 0, false
	}
	rank, ok = r.rankForServerNum(bestNum)
	return rank, ok
}

// NextSecondary resolves the secondary key immediately after key and
// returns it alongside the primary key value stored under it, the way a
// secondary-index get-next traversal resolves one step at a time: the
// secondary index routes key to the range server owning its slice, and
// that range server's stored value for a secondary key is the matching
// primary key rather than application data. nextSecondaryKey is the key
// exactly as stored in the owner's engine, i.e. in its
// keyspace.EncodeComparable form, not decoded back to the caller's form.
//
// owners gives in-process access to each candidate rank's opened Index,
// which only a single-process simulation (the comm.Local backend) can
// provide directly; a networked deployment would instead issue this as
// an RPC to the owning rank.
func (r *Router) NextSecondary(key []byte, owners map[int]*index.Index) (nextSecondaryKey, primaryKey []byte, err error) {
	rank, err := r.Route(key)
	if err != nil {
		return nil, nil, err
	}
	owner, ok := owners[rank]
	if !ok {
		return nil, nil, rkerr.E(rkerr.CommunicationError, "no local access to range server rank %d", rank)
	}
	encKey, err := keyspace.EncodeComparable(key, r.idx.KeyType)
	if err != nil {
		return nil, nil, err
	}
	return owner.Engine.GetNext(encKey)
}

// normalized holds a key's normalized magnitude in whichever family
// (integer or floating) its key type uses.
type normalized struct {
	u uint64
	f float64
}

func normalize(keyType keyspace.KeyType, key []byte) (normalized, error) {
	if keyspace.IsFloatKey(keyType) {
		v, err := keyspace.NormalizeFloat(key, keyType)
		if err != nil {
			return normalized{}, err
		}
		return normalized{f: v}, nil
	}
	v, err := keyspace.NormalizeInt(key, keyType)
	if err != nil {
		return normalized{}, err
	}
	return normalized{u: v}, nil
}
