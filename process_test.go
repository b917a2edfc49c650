//go:build unix

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
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestProcessNoRestart(t *testing.T) {
	Convey("With maxRestarts 0 a process runs once", t, func() {
		s, f, _ := newTestSupervisor(t)
		h := s.Manage(NewProcess(testSpec(), testConfig(t)))
		So(h.Fork(), ShouldBeNil)
		exit(s, h, 1)
		So(f.forks(), ShouldEqual, 1)
		So(h.Valid(), ShouldBeFalse)
	})
}

func TestProcessRestarts(t *testing.T) {
	Convey("With maxRestarts N a process restarts N times", t, func() {
		s, f, _ := newTestSupervisor(t)
		spec := testSpec()
		spec.MaxRestarts = 3
		h := s.Manage(NewProcess(spec, testConfig(t)))
		So(h.Fork(), ShouldBeNil)

		for i := 1; i <= 3; i++ {
			exit(s, h, 0)
			So(f.forks(), ShouldEqual, i+1)
			So(h.Valid(), ShouldBeTrue)
		}
		info, _ := h.Info()
		So(info.Starts, ShouldEqual, 4)

		exit(s, h, 0)
		So(f.forks(), ShouldEqual, 4)
		So(h.Valid(), ShouldBeFalse)
	})
}

func TestProcessBackoff(t *testing.T) {
	Convey("Restarts wait for the restart period", t, func() {
		s, f, _ := newTestSupervisor(t)
		t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		now := t0
		s.now = func() time.Time { return now }

		spec := testSpec()
		spec.MaxRestarts = 2
		spec.RestartPeriod = 30 * time.Second
		h := s.Manage(NewProcess(spec, testConfig(t)))
		So(h.Fork(), ShouldBeNil)
		So(f.last().NotBefore.IsZero(), ShouldBeTrue)

		info, _ := h.Info()
		So(info.NotBefore.Equal(t0.Add(30*time.Second)), ShouldBeTrue)
		So(info.ExecAt.Equal(t0), ShouldBeTrue)

		now = t0.Add(time.Second)
		exit(s, h, 1)
		So(f.forks(), ShouldEqual, 2)
		So(f.last().NotBefore.Equal(t0.Add(30*time.Second)), ShouldBeTrue)

		info, _ = h.Info()
		So(info.NotBefore.Equal(now.Add(30*time.Second)), ShouldBeTrue)
		So(info.ExecAt.Equal(t0.Add(30*time.Second)), ShouldBeTrue)
		So(info.ForkedAt.Equal(now), ShouldBeTrue)
	})
}

func TestProcessCommand(t *testing.T) {
	Convey("Given a service process", t, func() {
		conf := testConfig(t)
		spec := testSpec()
		spec.StartupOptions = Options{{"--b", "2"}, {"--a", "1"}}
		root := filepath.Join(conf.BaseDir, "work", "1.web.ops.test", "8080")

		Convey("An absolute script is used as is", func() {
			p := NewProcess(spec, conf)
			So(p.script(), ShouldEqual, "/bin/true")
			So(p.argv(), ShouldResemble, []string{"/bin/true", "--b", "2", "--a", "1"})
			So(p.root(), ShouldEqual, root)
		})
		Convey("A relative script lives in the root", func() {
			spec.StartupScript = "bin/run"
			So(NewProcess(spec, conf).script(), ShouldEqual, filepath.Join(root, "bin/run"))
		})
		Convey("No script means scripts/startup", func() {
			spec.StartupScript = ""
			So(NewProcess(spec, conf).script(), ShouldEqual,
				filepath.Join(root, "scripts", "startup"))
		})
		Convey("Arguments are capped", func() {
			var opts Options
			for i := 0; i < MaxOptionPairs+10; i++ {
				opts = append(opts, Option{Flag: "--x", Value: "y"})
			}
			spec.StartupOptions = opts
			So(len(NewProcess(spec, conf).argv()), ShouldEqual, 1+2*MaxOptionPairs)
		})
		Convey("The environment names the root", func() {
			s, f, _ := newTestSupervisor(t)
			h := s.Manage(NewProcess(spec, conf))
			So(h.Fork(), ShouldBeNil)
			env := strings.Join(f.last().Env, "\n")
			So(env, ShouldContainSubstring, "NODEE_ROOT="+root)
			So(f.last().Prefix, ShouldEqual, "[1.web.ops.test:8080/service] stdout> ")
		})
	})
}

func TestProcessStats(t *testing.T) {
	Convey("Page faults are counted between samples", t, func() {
		s, _, _ := newTestSupervisor(t)
		h := s.Manage(NewProcess(testSpec(), testConfig(t)))
		So(h.SetCurrentRss(2048), ShouldBeNil)
		So(h.CurrentRss(), ShouldEqual, 2048)
		So(h.SetPageFaults(100), ShouldBeNil)
		So(h.SetPageFaults(130), ShouldBeNil)
		So(h.RecentPageFaults(), ShouldEqual, 30)

		Convey("Samples for another pid are dropped", func() {
			So(h.Fork(), ShouldBeNil)
			So(h.sample(h.Pid()+1, 1, 1), ShouldBeFalse)
			So(h.sample(h.Pid(), 4096, 200), ShouldBeTrue)
			So(h.CurrentRss(), ShouldEqual, 4096)
			So(h.RecentPageFaults(), ShouldEqual, 200)
		})
	})

	Convey("A restarted process starts counting afresh", t, func() {
		s, f, _ := newTestSupervisor(t)
		spec := testSpec()
		spec.MaxRestarts = 1
		h := s.Manage(NewProcess(spec, testConfig(t)))
		So(h.Fork(), ShouldBeNil)
		So(h.sample(h.Pid(), 8192, 50000), ShouldBeTrue)
		So(h.sample(h.Pid(), 8192, 90000), ShouldBeTrue)
		So(h.RecentPageFaults(), ShouldEqual, 40000)

		exit(s, h, 1)
		So(f.forks(), ShouldEqual, 2)
		So(h.CurrentRss(), ShouldEqual, 0)
		So(h.RecentPageFaults(), ShouldEqual, 0)

		So(h.sample(h.Pid(), 1024, 300), ShouldBeTrue)
		So(h.RecentPageFaults(), ShouldBeGreaterThanOrEqualTo, 0)
		So(h.RecentPageFaults(), ShouldEqual, 300)
		info, _ := h.Info()
		So(info.Rss, ShouldEqual, 1024)
		So(info.PageFaults, ShouldEqual, 300)
	})
}

func TestProcessStop(t *testing.T) {
	Convey("Given a running service", t, func() {
		s, f, _ := newTestSupervisor(t)
		var killed []int
		s.kill = func(pid int) error {
			killed = append(killed, pid)
			return nil
		}
		spec := testSpec()
		spec.MaxRestarts = 5

		Convey("Stop without a shutdown script kills it", func() {
			h := s.Manage(NewProcess(spec, testConfig(t)))
			So(h.Fork(), ShouldBeNil)
			pid := h.Pid()
			So(h.Stop(), ShouldBeNil)
			So(killed, ShouldResemble, []int{pid})
			So(h.Stop(), ShouldBeNil)
			So(killed, ShouldResemble, []int{pid})

			exit(s, h, -1)
			So(f.forks(), ShouldEqual, 1)
			So(h.Valid(), ShouldBeFalse)
		})

		Convey("Stop with a shutdown script runs it", func() {
			spec.ShutdownScript = "/usr/bin/stop-it"
			h := s.Manage(NewProcess(spec, testConfig(t)))
			So(h.Fork(), ShouldBeNil)
			pid := h.Pid()
			So(h.Stop(), ShouldBeNil)
			So(killed, ShouldBeEmpty)
			So(f.forks(), ShouldEqual, 2)

			// Asking again does not run the script twice.
			So(h.Stop(), ShouldBeNil)
			So(f.forks(), ShouldEqual, 2)
			So(len(s.Processes()), ShouldEqual, 2)

			req := f.last()
			So(req.Path, ShouldEqual, "/usr/bin/stop-it")
			So(req.Env, ShouldContain, "PID="+strconv.Itoa(pid))

			var sd ProcessInfo
			for _, info := range s.Processes() {
				if info.Kind == KindShutdown {
					sd = info
				}
			}
			So(sd.Pid, ShouldNotEqual, 0)

			sh, _ := s.Find(sd.Pid)
			exit(s, sh, 0)
			So(sh.Valid(), ShouldBeFalse)
			exit(s, h, 0)
			So(h.Valid(), ShouldBeFalse)
			So(f.forks(), ShouldEqual, 2)
		})

		Convey("Stop when not running does nothing", func() {
			h := s.Manage(NewProcess(spec, testConfig(t)))
			So(h.Stop(), ShouldEqual, ErrNotRunning)
			So(killed, ShouldBeEmpty)
		})
	})
}
