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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestIdentityAllocator(t *testing.T) {
	Convey("Given a small allocator", t, func() {
		a := NewIdentityAllocator(IDRange{Min: 100, Max: 102}, IDRange{Min: 200, Max: 202})
		a.SetTakenFuncs(nil, nil)

		Convey("Ids are handed out round robin", func() {
			t1, e := a.Allocate()
			So(e, ShouldBeNil)
			t2, _ := a.Allocate()
			So(t1.Uid, ShouldEqual, 100)
			So(t1.Gid, ShouldEqual, 200)
			So(t2.Uid, ShouldEqual, 101)

			a.Release(t1)
			t3, _ := a.Allocate()
			So(t3.Uid, ShouldEqual, 102)
			t4, e := a.Allocate()
			So(e, ShouldBeNil)
			So(t4.Uid, ShouldEqual, 100)
		})

		Convey("Exhaustion is reported", func() {
			for i := 0; i < 3; i++ {
				_, e := a.Allocate()
				So(e, ShouldBeNil)
			}
			_, e := a.Allocate()
			So(e, ShouldEqual, ErrNoIdentity)
			So(a.InUse(), ShouldEqual, 3)
		})

		Convey("Releasing twice is harmless", func() {
			t1, _ := a.Allocate()
			t2, _ := a.Allocate()
			a.Release(t1)
			a.Release(t1)
			So(a.InUse(), ShouldEqual, 1)
			a.Release(t2)
			So(a.InUse(), ShouldEqual, 0)
		})

		Convey("Ids of local accounts are skipped", func() {
			a.SetTakenFuncs(func(id int) bool { return id == 100 },
				func(id int) bool { return id != 202 })
			t1, e := a.Allocate()
			So(e, ShouldBeNil)
			So(t1.Uid, ShouldEqual, 101)
			So(t1.Gid, ShouldEqual, 202)
			_, e = a.Allocate()
			So(e, ShouldEqual, ErrNoIdentity)
			So(a.InUse(), ShouldEqual, 1)
		})
	})
}
