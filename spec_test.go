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
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

const sampleSpec = `{
	"startupScript": "bin/server",
	"startupOptions": {"--zeta": "1", "--alpha": "2", "--mid": "3"},
	"shutdownScript": "bin/stop",
	"artifactUrl": "http://repo.test/web.tgz",
	"artifactFilename": "web.tgz",
	"restartPeriod": 2.5,
	"maxRestarts": 4,
	"coordinate": "1.web.ops.test",
	"port": 8080
}`

func TestParseSpec(t *testing.T) {
	Convey("Parsing a spec", t, func() {
		s, e := ParseSpec(strings.NewReader(sampleSpec))
		So(e, ShouldBeNil)
		So(s.StartupScript, ShouldEqual, "bin/server")
		So(s.RestartPeriod, ShouldEqual, 2500*time.Millisecond)
		So(s.MaxRestarts, ShouldEqual, 4)
		So(s.Name(), ShouldEqual, "1.web.ops.test:8080")
		So(s.ValidateLaunch(), ShouldBeNil)

		Convey("Options keep their order", func() {
			So(s.StartupOptions, ShouldResemble, Options{
				{"--zeta", "1"}, {"--alpha", "2"}, {"--mid", "3"},
			})
			b, e := json.Marshal(s.StartupOptions)
			So(e, ShouldBeNil)
			So(string(b), ShouldEqual, `{"--zeta":"1","--alpha":"2","--mid":"3"}`)
		})

		Convey("Clones are deep", func() {
			c := s.Clone()
			c.StartupOptions.Set("--zeta", "9")
			v, _ := s.StartupOptions.Get("--zeta")
			So(v, ShouldEqual, "1")
		})

		Convey("It survives a round trip", func() {
			b, e := json.Marshal(s)
			So(e, ShouldBeNil)
			s2, e := ParseSpec(strings.NewReader(string(b)))
			So(e, ShouldBeNil)
			So(s2, ShouldResemble, s)
		})
	})
}

func TestSpecRejects(t *testing.T) {
	Convey("Bad specs are rejected", t, func() {
		bad := map[string]string{
			"unknown field":   `{"coordinate":"a","port":1,"bogus":1}`,
			"no coordinate":   `{"port":1}`,
			"slash":           `{"coordinate":"a/b","port":1}`,
			"dotdot":          `{"coordinate":"a..b","port":1}`,
			"colon":           `{"coordinate":"a:1","port":1}`,
			"dot":             `{"coordinate":".","port":1}`,
			"port":            `{"coordinate":"a","port":70000}`,
			"negative period": `{"coordinate":"a","port":1,"restartPeriod":-1}`,
			"negative max":    `{"coordinate":"a","port":1,"maxRestarts":-1}`,
			"filename":        `{"coordinate":"a","port":1,"artifactFilename":"../x"}`,
			"options":         `{"coordinate":"a","port":1,"startupOptions":["x"]}`,
			"not json":        `{`,
		}
		for name, text := range bad {
			_, e := ParseSpec(strings.NewReader(text))
			So(e, ShouldNotBeNil)
			So(errors.Is(e, ErrInvalidSpec), ShouldBeTrue)
			if name == "port" {
				var ve *ValidationError
				So(errors.As(e, &ve), ShouldBeTrue)
				So(ve.Field, ShouldEqual, "port")
			}
		}

		Convey("A leading byte order mark is skipped", func() {
			s, e := ParseSpec(strings.NewReader("\ufeff" + `{"coordinate":"a","port":1}`))
			So(e, ShouldBeNil)
			So(s.Name(), ShouldEqual, "a:1")
		})

		Convey("Launching needs an artifact", func() {
			s, e := ParseSpec(strings.NewReader(`{"coordinate":"a","port":1}`))
			So(e, ShouldBeNil)
			So(errors.Is(s.ValidateLaunch(), ErrInvalidSpec), ShouldBeTrue)
		})
	})
}

func TestOptions(t *testing.T) {
	Convey("Options behave like an ordered map", t, func() {
		var o Options
		o = o.Set("--a", "1")
		o = o.Set("--b", "2")
		o = o.Set("--a", "3")
		So(o, ShouldResemble, Options{{"--a", "3"}, {"--b", "2"}})
		o = o.Delete("--a")
		So(o, ShouldResemble, Options{{"--b", "2"}})
		_, ok := o.Get("--a")
		So(ok, ShouldBeFalse)
	})
}
