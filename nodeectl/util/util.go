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

// Package util is used for internal implementation bits in the CLI/UI.
package util

import (
	"fmt"
	"sort"
	"time"

	"github.com/cloudname/nodee"
)

var stageOrder = map[string]int{
	nodee.KindDownload: 0,
	nodee.KindInstall:  1,
	nodee.KindService:  2,
	nodee.KindShutdown: 3,
}

// State summarizes what a process is doing.
func State(p *nodee.ProcessInfo) string {
	switch {
	case p.Pid != 0 && p.Stopping:
		return "stopping"
	case p.Pid != 0 && p.ExecAt.After(time.Now()):
		return "backoff"
	case p.Pid != 0:
		return "running"
	case p.Starts == 0:
		return "pending"
	default:
		return "exited"
	}
}

func FormatDuration(d time.Duration) string {

	sec := int((d % time.Minute) / time.Second)
	min := int((d % time.Hour) / time.Minute)
	hour := int(d / time.Hour)

	return fmt.Sprintf("%d:%02d:%02d", hour, min, sec)
}

// FormatKB renders a size in kB the way top does.
func FormatKB(kb int64) string {
	switch {
	case kb >= 10*1024*1024:
		return fmt.Sprintf("%dG", kb/(1024*1024))
	case kb >= 10*1024:
		return fmt.Sprintf("%dM", kb/1024)
	default:
		return fmt.Sprintf("%dk", kb)
	}
}

type sorted []nodee.ProcessInfo

func (s sorted) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sorted) Len() int {
	return len(s)
}

func (s sorted) Less(i, j int) bool {
	a := s[i]
	b := s[j]

	if a.Name != b.Name {
		return a.Name < b.Name
	}
	// Stages of one service in the order they run
	if a.Kind != b.Kind {
		return stageOrder[a.Kind] < stageOrder[b.Kind]
	}
	return a.ID < b.ID
}

// SortServices orders processes by service name, then by stage.
func SortServices(items []nodee.ProcessInfo) {
	sort.Sort(sorted(items))
}
