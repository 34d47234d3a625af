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

// Package rangekvcfg parses the command-line flags and YAML config files
// used to start a rangekv node, the way -stores and -attrs configure a
// cockroach node.
package rangekvcfg

import (
	"flag"
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/hpc-io/rangekv/keyspace"
	"github.com/hpc-io/rangekv/rkerr"
	"github.com/hpc-io/rangekv/store"
)

// Options holds everything needed to create or reopen an index and join
// it to a job communicator. The zero value is not valid; use Defaults to
// obtain a populated Options before overriding fields.
type Options struct {
	// DBPath is the directory each rank stores its engine files and
	// manifest under. Every rank must agree on DBPath; per-rank state
	// lives in files named by rank within it.
	DBPath string `yaml:"db_path"`

	// DBName names the index in log output. It is not part of any file
	// name: engine, manifest and stats files under DBPath are named by
	// index kind, index id and rank.
	DBName string `yaml:"db_name"`

	// EngineType selects the storage back end: mem or file.
	EngineType store.EngineType `yaml:"-"`
	EngineName string          `yaml:"engine"`

	// KeyType selects the comparator family used to order and slice
	// keys.
	KeyType     keyspace.KeyType `yaml:"-"`
	KeyTypeName string           `yaml:"key_type"`

	// ServerFactor is the spacing between consecutive range server
	// ranks: rank r is a range server iff r % ServerFactor == 0.
	ServerFactor uint32 `yaml:"server_factor"`

	// SliceSize is the number of distinct normalized key values that
	// fall in one slice.
	SliceSize uint64 `yaml:"slice_size"`

	// DebugLevel is the verbose logging level read from -debug_level or
	// the config file. It is stored here only; nothing applies it to
	// glog's -v verbosity.
	DebugLevel int `yaml:"debug_level"`

	// RPCAddr is the host:port this rank's RPC communicator listens on,
	// used only when the job runs the networked comm.RPC backend rather
	// than an in-process comm.Local simulation.
	RPCAddr string `yaml:"rpc_addr"`

	// Peers lists every rank's RPCAddr, ordered by rank, for the
	// networked backend. Peers[0] is always the coordinator.
	Peers []string `yaml:"peers"`
}

// Defaults returns an Options populated with the same defaults the
// command-line flags fall back to absent an override.
func Defaults() Options {
	return Options{
		DBPath:       ".",
		DBName:       "rangekv",
		EngineName:   "mem",
		EngineType:   store.MemEngine,
		KeyTypeName:  "int64",
		KeyType:      keyspace.SignedInt64,
		ServerFactor: 1,
		SliceSize:    1000,
	}
}

// engineByName and keyTypeByName mirror the -stores engine-spec parsing in
// cockroach's server package, trading a regexp-driven device list for the
// much smaller mem/file choice rangekv needs.
func engineByName(name string) (store.EngineType, error) {
	switch strings.ToLower(name) {
	case "mem", "memory":
		return store.MemEngine, nil
	case "file", "disk":
		return store.FileEngine, nil
	default:
		return 0, rkerr.E(rkerr.InvalidArgument, "unknown engine %q (want mem or file)", name)
	}
}

// KeyTypeByName resolves the same key-type names Parse and ParseFile
// accept, for callers (such as the stat command) that take a key type on
// the command line without going through a full Options.
func KeyTypeByName(name string) (keyspace.KeyType, error) {
	return keyTypeByName(name)
}

func keyTypeByName(name string) (keyspace.KeyType, error) {
	switch strings.ToLower(name) {
	case "int32":
		return keyspace.SignedInt32, nil
	case "int64":
		return keyspace.SignedInt64, nil
	case "float32":
		return keyspace.Float32Key, nil
	case "float64":
		return keyspace.Float64Key, nil
	case "byte", "bytestring":
		return keyspace.ByteString, nil
	case "unicode", "unicodestring":
		return keyspace.UnicodeString, nil
	default:
		return 0, rkerr.E(rkerr.InvalidArgument, "unknown key type %q", name)
	}
}

// ResolveNames fills EngineType and KeyType from EngineName and
// KeyTypeName. Callers that populate Options by some means other than
// Parse or ParseFile (for example binding pflag values directly) must
// call this before Validate.
func (o *Options) ResolveNames() error {
	return o.resolveNames()
}

// resolveNames fills EngineType and KeyType from EngineName and
// KeyTypeName, the way the YAML and flag paths both need to after
// populating the string form of each.
func (o *Options) resolveNames() error {
	et, err := engineByName(o.EngineName)
	if err != nil {
		return err
	}
	o.EngineType = et

	kt, err := keyTypeByName(o.KeyTypeName)
	if err != nil {
		return err
	}
	o.KeyType = kt
	return nil
}

// Validate checks that o describes a usable configuration, independent of
// whichever path (flags or YAML) produced it.
func (o *Options) Validate() error {
	if o.DBPath == "" {
		return rkerr.E(rkerr.InvalidArgument, "db_path must not be empty")
	}
	if o.DBName == "" {
		return rkerr.E(rkerr.InvalidArgument, "db_name must not be empty")
	}
	if o.ServerFactor == 0 {
		return rkerr.E(rkerr.InvalidArgument, "server_factor must be at least 1")
	}
	if o.SliceSize == 0 {
		return rkerr.E(rkerr.InvalidArgument, "slice_size must be at least 1")
	}
	if len(o.Peers) > 0 {
		if o.RPCAddr == "" {
			return rkerr.E(rkerr.InvalidArgument, "rpc_addr must be set when peers is non-empty")
		}
	}
	return nil
}

// Parse builds Options from a command-line flag set, the way runStart
// reads -stores and -attrs. fs is typically flag.CommandLine; args
// excludes the program name (it is passed straight to fs.Parse).
func Parse(fs *flag.FlagSet, args []string) (Options, error) {
	o := Defaults()

	dbPath := fs.String("db_path", o.DBPath, "directory each rank stores its engine and manifest files under")
	dbName := fs.String("db_name", o.DBName, "name of the index")
	engine := fs.String("engine", o.EngineName, "storage back end: mem or file")
	keyType := fs.String("key_type", o.KeyTypeName, "key comparator: int32, int64, float32, float64, byte, or unicode")
	serverFactor := fs.Uint("server_factor", uint(o.ServerFactor), "rank spacing between consecutive range servers")
	sliceSize := fs.Uint64("slice_size", o.SliceSize, "number of normalized key values per slice")
	debugLevel := fs.Int("debug_level", 0, "verbose logging level")
	rpcAddr := fs.String("rpc_addr", "", "host:port this rank's RPC communicator listens on; empty runs the in-process simulation")
	peers := fs.String("peers", "", "comma-separated host:port list of every rank's rpc_addr, ordered by rank")

	if err := fs.Parse(args); err != nil {
		return Options{}, rkerr.Wrap(rkerr.InvalidArgument, err, "parsing flags")
	}

	o.DBPath = *dbPath
	o.DBName = *dbName
	o.EngineName = *engine
	o.KeyTypeName = *keyType
	o.ServerFactor = uint32(*serverFactor)
	o.SliceSize = *sliceSize
	o.DebugLevel = *debugLevel
	o.RPCAddr = *rpcAddr
	if *peers != "" {
		o.Peers = splitNonEmpty(*peers)
	}

	if err := o.resolveNames(); err != nil {
		return Options{}, err
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// splitNonEmpty splits a comma-separated list, dropping empty elements so
// a trailing or doubled comma doesn't produce a spurious empty peer the
// way parseAttributes drops empty attribute entries.
func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseFile reads an Options from a YAML config file at path, the way
// ParseZoneConfig unmarshals a YAML zone config.
func ParseFile(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, rkerr.Wrap(rkerr.BackendError, err, "reading config file %s", path)
	}

	o := Defaults()
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Options{}, rkerr.Wrap(rkerr.InvalidArgument, err, "parsing config file %s", path)
	}
	if err := o.resolveNames(); err != nil {
		return Options{}, err
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// WriteFile serializes o as YAML to path, the inverse of ParseFile, used
// by the manifest-dump command to emit a reusable config alongside a
// discovered manifest.
func WriteFile(path string, o Options) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return rkerr.Wrap(rkerr.BackendError, err, "marshaling config")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return rkerr.Wrap(rkerr.BackendError, err, "writing config file %s", path)
	}
	return nil
}

// RPCAddrForRank derives the host:port a given rank's RPC communicator
// should listen on when Peers was not supplied explicitly: the rank's
// ordinal appended to a fixed base port, matching the "host + :0" default
// resolution newServer falls back to absent an explicit -rpc_addr.
func RPCAddrForRank(basePort int, rank int) string {
	return "127.0.0.1:" + strconv.Itoa(basePort+rank)
}
