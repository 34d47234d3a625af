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

// Package reconcile implements the stat-flush collective: range servers
// exchange their local per-slice statistics so that every rank in the
// job, client and server alike, ends up with the same job-wide view of
// slice extrema and counts, used to route range queries without
// contacting every server.
package reconcile

import (
	"bytes"
	"context"
	"encoding/gob"
	"sort"

	"github.com/hpc-io/rangekv/comm"
	"github.com/hpc-io/rangekv/index"
	"github.com/hpc-io/rangekv/rkerr"
	"github.com/hpc-io/rangekv/stats"
)

func init() {
	gob.Register(map[uint64]stats.Entry{})
}

// Flush performs one stat-flush round for idx over jobWorld: every range
// server's Stats are gathered at the index's master range server,
// unioned there, and the unioned result is broadcast back to every rank
// in jobWorld (range servers and clients alike), who replace their local
// Stats with it.
//
// Every rank that shares idx must call Flush; jobWorld must be the same
// communicator idx was created over.
func Flush(ctx context.Context, jobWorld comm.World, idx *index.Index) error {
	var unioned map[uint64]stats.Entry

	if idx.IsMine() {
		serverRanks := make([]int, len(idx.Servers.Entries))
		for i, e := range idx.Servers.Entries {
			serverRanks[i] = e.Rank
		}
		sort.Ints(serverRanks)

		serverWorld, err := jobWorld.Sub(serverRanks)
		if err != nil {
			return rkerr.Wrap(rkerr.CommunicationError, err, "joining range server sub-communicator")
		}

		masterPos := -1
		for i, r := range serverRanks {
			if r == idx.Servers.Master {
				masterPos = i
			}
		}
		if masterPos < 0 {
			return rkerr.E(rkerr.CommunicationError, "index master rank %d is not in its own server list", idx.Servers.Master)
		}

		payload, err := encodeSnapshot(idx.Stats.Snapshot())
		if err != nil {
			return err
		}

		if err := serverWorld.Barrier(ctx); err != nil {
			return rkerr.Wrap(rkerr.CommunicationError, err, "barrier before stat gather")
		}
		gathered, err := serverWorld.Gather(ctx, masterPos, payload)
		if err != nil {
			return rkerr.Wrap(rkerr.CommunicationError, err, "gathering stats at master range server")
		}

		if serverWorld.Rank() == masterPos {
			merged := stats.New(idx.KeyType)
			for _, raw := range gathered {
				snap, err := decodeSnapshot(raw)
				if err != nil {
					return err
				}
				merged.Merge(stats.FromSnapshot(idx.KeyType, snap))
			}
			unioned = merged.Snapshot()
		}
	}

	var broadcastPayload []byte
	if jobWorld.Rank() == idx.Servers.Master {
		encoded, err := encodeSnapshot(unioned)
		if err != nil {
			return err
		}
		broadcastPayload = encoded
	}

	if err := jobWorld.Barrier(ctx); err != nil {
		return rkerr.Wrap(rkerr.CommunicationError, err, "barrier before stat broadcast")
	}
	received, err := jobWorld.Broadcast(ctx, idx.Servers.Master, broadcastPayload)
	if err != nil {
		return rkerr.Wrap(rkerr.CommunicationError, err, "broadcasting reconciled stats")
	}

	snap, err := decodeSnapshot(received)
	if err != nil {
		return err
	}
	idx.Stats.Replace(snap)
	return nil
}

func encodeSnapshot(snap map[uint64]stats.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, rkerr.Wrap(rkerr.BackendError, err, "encoding stats snapshot")
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (map[uint64]stats.Entry, error) {
	if len(data) == 0 {
		return map[uint64]stats.Entry{}, nil
	}
	var snap map[uint64]stats.Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return nil, rkerr.Wrap(rkerr.BackendError, err, "decoding stats snapshot")
	}
	return snap, nil
}
