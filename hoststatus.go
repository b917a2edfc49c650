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
	"os"
)

// ServiceStatus is what the host status reports per process: enough to
// pick a victim should the node run short of memory.
type ServiceStatus struct {
	Name             string `json:"name"`
	Kind             string `json:"kind"`
	Pid              int    `json:"pid"`
	Uid              int    `json:"uid"`
	Rss              int64  `json:"rss"`
	RecentPageFaults int64  `json:"recentPageFaults"`
}

// HostStatus describes the node.  Memory figures are in kB.
type HostStatus struct {
	Hostname      string          `json:"hostname"`
	SupervisorPid int             `json:"supervisorPid"`
	Load1         float64         `json:"load1"`
	Load5         float64         `json:"load5"`
	Load15        float64         `json:"load15"`
	MemTotal      uint64          `json:"memTotal"`
	MemFree       uint64          `json:"memFree"`
	MemAvailable  uint64          `json:"memAvailable"`
	Running       int             `json:"running"`
	Services      []ServiceStatus `json:"services"`
}

func deref(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

// HostStatus reports the load and memory of the node, along with the
// last samples of every supervised process.  Missing proc files leave
// their fields zero.
func (c *Collector) HostStatus() *HostStatus {
	hs := &HostStatus{SupervisorPid: os.Getpid()}
	hs.Hostname, _ = os.Hostname()

	if la, e := c.fs.LoadAvg(); e == nil {
		hs.Load1, hs.Load5, hs.Load15 = la.Load1, la.Load5, la.Load15
	}
	if mi, e := c.fs.Meminfo(); e == nil {
		hs.MemTotal = deref(mi.MemTotal)
		hs.MemFree = deref(mi.MemFree)
		hs.MemAvailable = deref(mi.MemAvailable)
	}

	hs.Services = []ServiceStatus{}
	for _, info := range c.sup.Processes() {
		if info.Pid != 0 {
			hs.Running++
		}
		hs.Services = append(hs.Services, ServiceStatus{
			Name:             info.Name,
			Kind:             info.Kind,
			Pid:              info.Pid,
			Uid:              info.Uid,
			Rss:              info.Rss,
			RecentPageFaults: info.RecentPageFaults,
		})
	}
	return hs
}
