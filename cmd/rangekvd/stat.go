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
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hpc-io/rangekv/keyspace"
	"github.com/hpc-io/rangekv/rangekvcfg"
	"github.com/hpc-io/rangekv/stats"
)

func newStatCmd() *cobra.Command {
	var path, keyTypeName string

	cmd := &cobra.Command{
		Use:   "stat",
		Short: "print the per-slice extrema and counts persisted in a stats file",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyType, err := rangekvcfg.KeyTypeByName(keyTypeName)
			if err != nil {
				return err
			}

			m := stats.New(keyType)
			if err := m.Load(path); err != nil {
				return err
			}

			slices := m.Slices()
			sort.Slice(slices, func(i, j int) bool { return slices[i] < slices[j] })

			isFloat := keyspace.IsFloatKey(keyType)
			for _, slice := range slices {
				e, _ := m.Get(slice)
				if isFloat {
					fmt.Printf("slice %d: min=%g max=%g num=%d\n", slice, e.DMin, e.DMax, e.Num)
				} else {
					fmt.Printf("slice %d: min=%d max=%d num=%d\n", slice, e.IMin, e.IMax, e.Num)
				}
			}
			if len(slices) == 0 {
				fmt.Println("no slices recorded")
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&path, "path", "", "path to the .stats file to read")
	fs.StringVar(&keyTypeName, "key_type", "int64", "key comparator the stats file was written with: int32, int64, float32, float64, byte, or unicode")
	cmd.MarkFlagRequired("path")

	return cmd
}
