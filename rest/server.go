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
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/cloudname/nodee"
)

const homePage = `<html>
<head><title>Nodee</title></head>
<body style='text-align: center;'>
<h1>Nodee</h1>
<p>This is the home page of a nodee server. There are no web pages to see
here, only a few JSON API things.
</body>
</html>
`

// Handler serves the control API of one Supervisor.
type Handler struct {
	sup      *nodee.Supervisor
	launcher *nodee.Launcher
	coll     *nodee.Collector
	arts     *nodee.ArtifactIndex
	metrics  *nodee.Metrics
	user     string
	hash     []byte
	r        *mux.Router
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// launchError maps a failure to launch onto a response.
func launchError(e error) *Error {
	switch {
	case errors.Is(e, nodee.ErrInvalidSpec):
		return &Error{http.StatusBadRequest, e.Error()}
	case errors.Is(e, nodee.ErrDuplicate):
		return &Error{http.StatusConflict, e.Error()}
	case errors.Is(e, nodee.ErrNoIdentity),
		errors.Is(e, nodee.ErrForkFailed),
		errors.Is(e, nodee.ErrClosed):
		return &Error{http.StatusServiceUnavailable, e.Error()}
	default:
		return &Error{http.StatusInternalServerError, e.Error()}
	}
}

// pollWait returns how long the client wants us to wait for a change
// away from etag, or 0 if it only wants a conditional GET.
func pollWait(r *http.Request, etag string) time.Duration {
	if r.Header.Get(PollEtagHeader) != etag {
		return 0
	}
	secs, e := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if e != nil || secs <= 0 {
		return 0
	}
	if secs > MaxPollTime {
		secs = MaxPollTime
	}
	return time.Duration(secs) * time.Second
}

func parseEtag(s string) (int64, bool) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return 0, false
	}
	v, e := strconv.ParseInt(s[1:len(s)-1], 10, 64)
	return v, e == nil
}

func formatEtag(v int64) string {
	return fmt.Sprintf("\"%d\"", v)
}

// conditional handles If-None-Match against a serial number, waiting
// for a change if asked.  It returns the serial to report, and false if
// the response (304) has been written already.
func conditional(w http.ResponseWriter, r *http.Request, cur int64,
	watch func(int64, time.Duration) int64) (int64, bool) {

	inm := r.Header.Get("If-None-Match")
	old, ok := parseEtag(inm)
	if !ok {
		return cur, true
	}
	if old == cur {
		if d := pollWait(r, inm); d > 0 {
			cur = watch(old, d)
		}
	}
	if old == cur {
		w.Header().Set("Etag", inm)
		w.WriteHeader(http.StatusNotModified)
		return cur, false
	}
	return cur, true
}

func (h *Handler) startService(w http.ResponseWriter, r *http.Request) {
	spec, e := nodee.ParseSpec(r.Body)
	if e != nil {
		h.writeError(w, &Error{http.StatusBadRequest, e.Error()})
		return
	}
	if _, e = h.launcher.Launch(spec); e != nil {
		h.writeError(w, launchError(e))
		return
	}
	w.Header().Set(StatusHeader, "Will launch, or try to")
	h.writeJson(w, spec)
}

func (h *Handler) stopService(w http.ResponseWriter, r *http.Request) {
	pid, e := strconv.Atoi(mux.Vars(r)["pid"])
	if e != nil || pid <= 0 {
		h.writeError(w, &Error{http.StatusBadRequest, "Bad pid"})
		return
	}
	p, ok := h.sup.Find(pid)
	if !ok {
		h.writeError(w, &Error{http.StatusNotFound, nodee.ErrNotFound.Error()})
		return
	}
	info, e := p.Info()
	if e == nil {
		e = p.Stop()
	}
	if e != nil {
		h.writeError(w, &Error{http.StatusNotFound, e.Error()})
		return
	}
	w.Header().Set(StatusHeader, "Will stop, or try to")
	h.writeJson(w, info.Spec)
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	serial, ok := conditional(w, r, h.sup.Serial(), h.sup.WatchSerial)
	if !ok {
		return
	}
	// Take the snapshot after the serial, so it is at least that new.
	list := h.sup.Processes()
	w.Header().Set("Etag", formatEtag(serial))
	w.Header().Set(StatusHeader, "Service list follows")
	h.writeJson(w, list)
}

func (h *Handler) listArtifacts(w http.ResponseWriter, r *http.Request) {
	if h.arts == nil {
		h.writeJson(w, []string{})
		return
	}
	w.Header().Set(StatusHeader, "Artifact list follows")
	h.writeJson(w, h.arts.List())
}

func (h *Handler) hostStatus(w http.ResponseWriter, r *http.Request) {
	if h.coll == nil {
		h.writeError(w, &Error{http.StatusNotFound, "No status collector"})
		return
	}
	w.Header().Set(StatusHeader, "Let me tell you how I feel")
	h.writeJson(w, h.coll.HostStatus())
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	last := h.sup.WatchLog(0, 0)
	if _, ok := conditional(w, r, last, h.sup.WatchLog); !ok {
		return
	}
	recs, id := h.sup.GetLog(0)
	w.Header().Set("Etag", formatEtag(id))
	h.writeJson(w, recs)
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", mimeHtml)
	w.Header().Set(StatusHeader, "This is not a web site")
	w.Write([]byte(homePage))
}

func (h *Handler) robots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", mimeText)
	w.Write([]byte("User-Agent: *\r\nDisallow: /\r\n"))
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, &Error{http.StatusNotFound, "No such page"})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.user == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != h.user {
		return false
	}
	return bcrypt.CompareHashAndPassword(h.hash, []byte(pass)) == nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !h.authorized(req) {
		w.Header().Set("WWW-Authenticate", `Basic realm="nodee"`)
		h.writeError(w, &Error{http.StatusUnauthorized, "Authorization required"})
		return
	}
	h.r.ServeHTTP(w, req)
}

// SetCollector enables /nodee/status.
func (h *Handler) SetCollector(c *nodee.Collector) {
	h.coll = c
}

// SetArtifacts enables /artifact/list.
func (h *Handler) SetArtifacts(a *nodee.ArtifactIndex) {
	h.arts = a
}

// SetMetrics enables /metrics.
func (h *Handler) SetMetrics(m *nodee.Metrics) {
	h.metrics = m
}

// SetAuth requires HTTP basic authentication as user, whose password
// must match the bcrypt hash.  An empty user turns authentication off.
func (h *Handler) SetAuth(user string, hash string) {
	h.user = user
	h.hash = []byte(hash)
}

func (h *Handler) serveMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		h.notFound(w, r)
		return
	}
	h.metrics.Handler().ServeHTTP(w, r)
}

func NewHandler(sup *nodee.Supervisor, l *nodee.Launcher) *Handler {
	r := mux.NewRouter()
	h := &Handler{sup: sup, launcher: l, r: r}
	r.HandleFunc("/service/start", h.startService).Methods("POST")
	r.HandleFunc("/service/stop/{pid}", h.stopService).Methods("POST")
	r.HandleFunc("/service/list", h.listServices).Methods("GET")
	r.HandleFunc("/artifact/list", h.listArtifacts).Methods("GET")
	r.HandleFunc("/nodee/status", h.hostStatus).Methods("GET")
	r.HandleFunc("/nodee/log", h.getLog).Methods("GET")
	r.HandleFunc("/metrics", h.serveMetrics).Methods("GET")
	r.HandleFunc("/robots.txt", h.robots).Methods("GET")
	r.HandleFunc("/", h.home).Methods("GET")
	r.NotFoundHandler = http.HandlerFunc(h.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.notFound)
	return h
}
