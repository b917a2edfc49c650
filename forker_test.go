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
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestExecForker(t *testing.T) {
	Convey("Given an exec forker", t, func() {
		ef, e := NewExecForker(log.New(&testLog{t: t}, "", 0))
		So(e, ShouldBeNil)
		dir := t.TempDir()

		Convey("The child waits for its not-before time to exec", func() {
			script := filepath.Join(dir, "stamp")
			out := filepath.Join(dir, "stamp.out")
			So(os.WriteFile(script, []byte("#!/bin/sh\ndate +%s > \"$OUT\"\n"), 0755),
				ShouldBeNil)

			notBefore := time.Now().Add(time.Second)
			start := time.Now()
			pid, e := ef.Fork(&ForkRequest{
				Path:      script,
				Args:      []string{script},
				Env:       append(os.Environ(), "OUT="+out),
				NotBefore: notBefore,
				Prefix:    "[stamp] ",
			})
			So(e, ShouldBeNil)
			So(pid, ShouldBeGreaterThan, 0)
			So(time.Since(start), ShouldBeLessThan, 500*time.Millisecond)

			// Still sleeping in the helper.
			time.Sleep(300 * time.Millisecond)
			_, e = os.Stat(out)
			So(os.IsNotExist(e), ShouldBeTrue)

			var ws syscall.WaitStatus
			_, e = syscall.Wait4(pid, &ws, 0, nil)
			So(e, ShouldBeNil)
			So(ws.Exited(), ShouldBeTrue)
			So(ws.ExitStatus(), ShouldEqual, 0)
			So(time.Now().Before(notBefore), ShouldBeFalse)

			b, e := os.ReadFile(out)
			So(e, ShouldBeNil)
			stamp, e := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
			So(e, ShouldBeNil)
			So(stamp, ShouldBeGreaterThanOrEqualTo, notBefore.Unix())
		})

		Convey("A script that cannot be run exits 66", func() {
			missing := filepath.Join(dir, "missing")
			pid, e := ef.Fork(&ForkRequest{
				Path: missing,
				Args: []string{missing},
			})
			So(e, ShouldBeNil)

			var ws syscall.WaitStatus
			_, e = syscall.Wait4(pid, &ws, 0, nil)
			So(e, ShouldBeNil)
			So(ws.ExitStatus(), ShouldEqual, exitNoInput)
		})

		Convey("An empty argument vector is refused", func() {
			_, e := ef.Fork(&ForkRequest{})
			So(e, ShouldNotBeNil)
		})
	})
}
