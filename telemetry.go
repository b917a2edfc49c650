// Copyright 2026 The Nodee Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nodee

import (
	"context"
	"time"

	"github.com/prometheus/procfs"
)

// Collector samples the resident set size and page faults of every
// running supervised process from procfs.
type Collector struct {
	sup      *Supervisor
	fs       procfs.FS
	interval time.Duration
}

// NewCollector reads process statistics from the proc filesystem mounted
// at procRoot (procfs.DefaultMountPoint if empty).
func NewCollector(sup *Supervisor, procRoot string, interval time.Duration) (*Collector, error) {
	if procRoot == "" {
		procRoot = procfs.DefaultMountPoint
	}
	fs, e := procfs.NewFS(procRoot)
	if e != nil {
		return nil, e
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Collector{sup: sup, fs: fs, interval: interval}, nil
}

// Collect takes one sample of every running process and returns how many
// were updated.  Processes that exit meanwhile are skipped.
func (c *Collector) Collect() int {
	n := 0
	for _, h := range c.sup.Handles() {
		pid := h.Pid()
		if pid == 0 {
			continue
		}
		proc, e := c.fs.Proc(pid)
		if e != nil {
			continue
		}
		st, e := proc.Stat()
		if e != nil {
			continue
		}
		rss := int64(st.ResidentMemory() / 1024)
		faults := int64(st.MinFlt) + int64(st.MajFlt)
		if h.sample(pid, rss, faults) {
			n++
		}
	}
	return n
}

// Run collects every interval until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	tick := time.NewTicker(c.interval)
	defer tick.Stop()
	for {
		c.Collect()
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}
