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

package util

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/cloudname/nodee"
)

func TestFormat(t *testing.T) {
	Convey("Durations and sizes format compactly", t, func() {
		So(FormatDuration(90*time.Minute+5*time.Second), ShouldEqual, "1:30:05")
		So(FormatKB(512), ShouldEqual, "512k")
		So(FormatKB(20*1024), ShouldEqual, "20M")
		So(FormatKB(12*1024*1024), ShouldEqual, "12G")
	})
}

func TestState(t *testing.T) {
	Convey("States are derived from the snapshot", t, func() {
		So(State(&nodee.ProcessInfo{}), ShouldEqual, "pending")
		So(State(&nodee.ProcessInfo{Starts: 1}), ShouldEqual, "exited")
		So(State(&nodee.ProcessInfo{Pid: 10, Starts: 1}), ShouldEqual, "running")
		So(State(&nodee.ProcessInfo{Pid: 10, Starts: 1, Stopping: true}), ShouldEqual, "stopping")
		So(State(&nodee.ProcessInfo{Pid: 10, Starts: 2,
			ExecAt: time.Now().Add(time.Hour)}), ShouldEqual, "backoff")
	})
}

func TestSortServices(t *testing.T) {
	Convey("Stages sort in launch order", t, func() {
		items := []nodee.ProcessInfo{
			{ID: 3, Name: "b8080", Kind: nodee.KindService},
			{ID: 2, Name: "a8080", Kind: nodee.KindService},
			{ID: 1, Name: "a8080", Kind: nodee.KindDownload},
		}
		SortServices(items)
		So(items[0].ID, ShouldEqual, 1)
		So(items[1].ID, ShouldEqual, 2)
		So(items[2].ID, ShouldEqual, 3)
	})
}
