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

package rest

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/context"

	"github.com/cloudname/nodee"
)

type fakeForker struct {
	pid  int
	fail error
	sync.Mutex
}

func (f *fakeForker) Fork(req *nodee.ForkRequest) (int, error) {
	f.Lock()
	defer f.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	f.pid++
	return 1000 + f.pid, nil
}

type idleReaper struct{}

func (idleReaper) Run(ctx context.Context, exits chan<- nodee.Exit) { <-ctx.Done() }
func (idleReaper) Kick()                                           {}

const startBody = `{
	"startupScript": "bin/server",
	"startupOptions": {"--port": "8080"},
	"artifactUrl": "http://repo.test/web.tgz",
	"artifactFilename": "web.tgz",
	"maxRestarts": 2,
	"coordinate": "1.web.ops.test",
	"port": 8080
}`

type fixture struct {
	sup    *nodee.Supervisor
	forker *fakeForker
	killed []int
	h      *Handler
	srv    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	fx := &fixture{forker: &fakeForker{}}
	fx.sup = nodee.NewSupervisor(fx.forker, idleReaper{})
	fx.sup.SetLogger(log.New(io.Discard, "", 0))
	fx.sup.SetKiller(func(pid int) error {
		fx.killed = append(fx.killed, pid)
		return nil
	})
	conf := nodee.DefaultConfig()
	conf.BaseDir = t.TempDir()
	ids := nodee.NewIdentityAllocator(conf.UIDs, conf.GIDs)
	ids.SetTakenFuncs(nil, nil)
	fx.h = NewHandler(fx.sup, nodee.NewLauncher(fx.sup, ids, conf))
	fx.srv = httptest.NewServer(fx.h)
	return fx
}

func (fx *fixture) do(method, path, body string, hdr ...string) *http.Response {
	req, e := http.NewRequest(method, fx.srv.URL+path, strings.NewReader(body))
	So(e, ShouldBeNil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	res, e := http.DefaultClient.Do(req)
	So(e, ShouldBeNil)
	return res
}

func readBody(res *http.Response) string {
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	return string(b)
}

func TestServerServices(t *testing.T) {
	Convey("Given a server", t, func() {
		fx := newFixture(t)
		defer fx.srv.Close()

		Convey("The home page is not a web site", func() {
			res := fx.do("GET", "/", "")
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			So(readBody(res), ShouldContainSubstring, "Nodee")
			So(fx.do("GET", "/robots.txt", "").StatusCode, ShouldEqual, http.StatusOK)
			So(fx.do("GET", "/nowhere", "").StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("Starting a service launches its download", func() {
			res := fx.do("POST", "/service/start", startBody)
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			So(res.Header.Get(StatusHeader), ShouldEqual, "Will launch, or try to")
			spec, e := nodee.ParseSpec(strings.NewReader(readBody(res)))
			So(e, ShouldBeNil)
			So(spec.Coordinate, ShouldEqual, "1.web.ops.test")
			So(fx.sup.Running(), ShouldEqual, 1)

			res = fx.do("GET", "/service/list", "")
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			etag := res.Header.Get("Etag")
			So(etag, ShouldNotBeBlank)
			var list []nodee.ProcessInfo
			So(json.Unmarshal([]byte(readBody(res)), &list), ShouldBeNil)
			So(len(list), ShouldEqual, 3)
			So(list[0].Kind, ShouldEqual, nodee.KindDownload)
			So(list[0].Pid, ShouldEqual, 1001)

			Convey("An unchanged list is not sent again", func() {
				res := fx.do("GET", "/service/list", "", "If-None-Match", etag)
				So(res.StatusCode, ShouldEqual, http.StatusNotModified)
			})

			Convey("It can be stopped by pid", func() {
				res := fx.do("POST", "/service/stop/1001", "")
				So(res.StatusCode, ShouldEqual, http.StatusOK)
				So(fx.killed, ShouldResemble, []int{1001})
				So(readBody(res), ShouldContainSubstring, "1.web.ops.test")

				res = fx.do("GET", "/service/list", "", "If-None-Match", etag)
				So(res.StatusCode, ShouldEqual, http.StatusOK)
			})
		})

		Convey("Bad requests are refused", func() {
			So(fx.do("POST", "/service/start", "{").StatusCode, ShouldEqual, http.StatusBadRequest)
			So(fx.do("POST", "/service/start", `{"coordinate":"x","port":1}`).StatusCode,
				ShouldEqual, http.StatusBadRequest)
			So(fx.do("POST", "/service/stop/abc", "").StatusCode, ShouldEqual, http.StatusBadRequest)

			res := fx.do("POST", "/service/stop/4242", "")
			So(res.StatusCode, ShouldEqual, http.StatusNotFound)
			So(readBody(res), ShouldContainSubstring, "No such service")
		})

		Convey("Starting a running service again conflicts", func() {
			So(fx.do("POST", "/service/start", startBody).StatusCode, ShouldEqual, http.StatusOK)
			res := fx.do("POST", "/service/start", startBody)
			So(res.StatusCode, ShouldEqual, http.StatusConflict)
			So(readBody(res), ShouldContainSubstring, "already supervised")
			So(len(fx.sup.Processes()), ShouldEqual, 3)
		})

		Convey("A launch that cannot fork is unavailable", func() {
			fx.forker.fail = errors.New("Injected failure")
			res := fx.do("POST", "/service/start", startBody)
			So(res.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
			So(fx.sup.Processes(), ShouldBeEmpty)
		})
	})
}

func TestServerExtras(t *testing.T) {
	Convey("Given a server with all the extras", t, func() {
		fx := newFixture(t)
		defer fx.srv.Close()

		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "web.tgz"), []byte("x"), 0644), ShouldBeNil)
		arts := nodee.NewArtifactIndex(dir, nil)
		So(arts.Refresh(), ShouldBeNil)
		fx.h.SetArtifacts(arts)

		coll, e := nodee.NewCollector(fx.sup, t.TempDir(), 0)
		So(e, ShouldBeNil)
		fx.h.SetCollector(coll)
		m := nodee.NewMetrics("")
		fx.sup.SetMetrics(m)
		fx.h.SetMetrics(m)

		Convey("Artifacts are listed", func() {
			res := fx.do("GET", "/artifact/list", "")
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			So(readBody(res), ShouldEqual, `["web.tgz"]`)
		})

		Convey("Status is reported", func() {
			fx.do("POST", "/service/start", startBody).Body.Close()
			res := fx.do("GET", "/nodee/status", "")
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			var hs nodee.HostStatus
			So(json.Unmarshal([]byte(readBody(res)), &hs), ShouldBeNil)
			So(hs.Running, ShouldEqual, 1)
			So(len(hs.Services), ShouldEqual, 3)
		})

		Convey("Metrics are exported", func() {
			fx.do("POST", "/service/start", startBody).Body.Close()
			res := fx.do("GET", "/metrics", "")
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			So(readBody(res), ShouldContainSubstring, `nodee_forks_total{kind="download"} 1`)
		})

		Convey("The log is served", func() {
			fx.sup.Logger().Print("hello from the test")
			res := fx.do("GET", "/nodee/log", "")
			So(res.StatusCode, ShouldEqual, http.StatusOK)
			So(readBody(res), ShouldContainSubstring, "hello from the test")
		})
	})
}

func TestServerAuth(t *testing.T) {
	Convey("Given a server requiring a password", t, func() {
		fx := newFixture(t)
		defer fx.srv.Close()
		hash, e := bcrypt.GenerateFromPassword([]byte("sekrit"), bcrypt.MinCost)
		So(e, ShouldBeNil)
		fx.h.SetAuth("admin", string(hash))

		So(fx.do("GET", "/service/list", "").StatusCode, ShouldEqual, http.StatusUnauthorized)

		req, _ := http.NewRequest("GET", fx.srv.URL+"/service/list", nil)
		req.SetBasicAuth("admin", "wrong")
		res, e := http.DefaultClient.Do(req)
		So(e, ShouldBeNil)
		So(res.StatusCode, ShouldEqual, http.StatusUnauthorized)
		res.Body.Close()

		c := NewClient(nil, fx.srv.URL)
		c.SetAuth("admin", "sekrit")
		list, e := c.Services()
		So(e, ShouldBeNil)
		So(list, ShouldBeEmpty)
	})
}

func TestClient(t *testing.T) {
	Convey("Given a client", t, func() {
		fx := newFixture(t)
		defer fx.srv.Close()
		c := NewClient(nil, fx.srv.URL)

		spec, e := nodee.ParseSpec(strings.NewReader(startBody))
		So(e, ShouldBeNil)
		got, e := c.StartService(spec)
		So(e, ShouldBeNil)
		So(got, ShouldResemble, spec)

		list, e := c.Services()
		So(e, ShouldBeNil)
		So(len(list), ShouldEqual, 3)

		Convey("Watching sees changes", func() {
			last, e := c.WatchServices(context.Background(), nil)
			So(e, ShouldBeNil)
			done := make(chan *ServiceList, 1)
			go func() {
				l, _ := c.WatchServices(context.Background(), last)
				done <- l
			}()
			_, e = c.StopService(1001)
			So(e, ShouldBeNil)
			next := <-done
			So(next, ShouldNotBeNil)
			So(next.etag, ShouldNotEqual, last.etag)
		})

		Convey("Errors carry the server's message", func() {
			_, e := c.StopService(77)
			So(e, ShouldNotBeNil)
			var re *Error
			So(errors.As(e, &re), ShouldBeTrue)
			So(re.Code, ShouldEqual, http.StatusNotFound)
			So(re.Message, ShouldEqual, "No such service")
		})

		Convey("The log can be fetched", func() {
			l, e := c.GetLog()
			So(e, ShouldBeNil)
			So(l.Records, ShouldNotBeEmpty)
		})
	})
}
