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

package main

import (
	_ "expvar"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/hpc-io/rangekv/client"
	"github.com/hpc-io/rangekv/index"
)

const (
	healthzKey     = "/healthz"
	debugKeyPrefix = "/debug/"
	statsKey       = debugKeyPrefix + "stats"
	routeKey       = debugKeyPrefix + "route"
)

// adminServer exports a small HTTP debug interface over one rank's
// index, the way adminServer passed /debug and /healthz through to the
// default serve mux and exported zone configuration over REST.
type adminServer struct {
	idx    *index.Index
	router *client.Router
	mux    *http.ServeMux
}

func newAdminServer(idx *index.Index, router *client.Router) *adminServer {
	s := &adminServer{idx: idx, router: router, mux: http.NewServeMux()}
	s.mux.HandleFunc(debugKeyPrefix, s.handleDebugPassthrough)
	s.mux.HandleFunc(healthzKey, s.handleHealthz)
	s.mux.HandleFunc(statsKey, s.handleStats)
	s.mux.HandleFunc(routeKey, s.handleRoute)
	return s
}

func (s *adminServer) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

// handleHealthz responds to health requests from monitoring services.
func (s *adminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

// handleDebugPassthrough passes requests under /debug/ onto the default
// serve mux, which is preconfigured by the blank imports of expvar and
// net/http/pprof above to serve exported variables and pprof tools.
func (s *adminServer) handleDebugPassthrough(w http.ResponseWriter, r *http.Request) {
	handler, pattern := http.DefaultServeMux.Handler(r)
	if pattern == "" {
		http.NotFound(w, r)
		return
	}
	handler.ServeHTTP(w, r)
}

type statsSummary struct {
	Kind             string            `json:"kind"`
	KeyType          string            `json:"key_type"`
	IsRangeServer    bool              `json:"is_range_server"`
	MyRangeServerNum uint32            `json:"my_range_server_num"`
	NumRangeServers  uint32            `json:"num_range_servers"`
	Slices           map[uint64]uint64 `json:"slices_to_count"`
}

// handleStats reports this rank's current per-slice counts, the same
// information the stat-flush collective reconciles across every rank.
func (s *adminServer) handleStats(w http.ResponseWriter, r *http.Request) {
	summary := statsSummary{
		Kind:             s.idx.Kind.String(),
		KeyType:          s.idx.KeyType.String(),
		IsRangeServer:    s.idx.IsMine(),
		MyRangeServerNum: s.idx.MyRangeServerNum,
		NumRangeServers:  s.idx.NumRangeServers,
		Slices:           map[uint64]uint64{},
	}
	if s.idx.Stats != nil {
		for _, slice := range s.idx.Stats.Slices() {
			if e, ok := s.idx.Stats.Get(slice); ok {
				summary.Slices[slice] = e.Num
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleRoute reports which rank owns a base64-encoded key, given as the
// ?key= query parameter. It does not fetch the value; it only answers
// the routing question a client would ask before issuing a get or put.
func (s *adminServer) handleRoute(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("key")
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid key: %v", err), http.StatusBadRequest)
		return
	}
	rank, err := s.router.Route(key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"rank":%d}`, rank)
}
