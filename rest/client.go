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
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/context"

	"github.com/cloudname/nodee"
)

// ServiceList is the set of processes a nodee supervises, as of Etag.
type ServiceList struct {
	etag     string
	Services []nodee.ProcessInfo
}

// LogInfo is the supervisor's log, as of Etag.
type LogInfo struct {
	etag    string
	Records []nodee.LogRecord
}

type Client struct {
	user      string // HTTP Basic-Auth
	pass      string
	base      string // URI to root of tree on server
	auth      bool
	client    *http.Client
	transport *http.Transport

	// Cached data
	services *ServiceList
	lock     sync.Mutex
}

func (c *Client) SetAuth(user string, pass string) {
	c.user = user
	c.pass = pass
	c.auth = true
}

func (c *Client) url(path string) string {
	return c.base + path
}

// readError turns a failed response into an *Error, using the server's
// message where there is one.
func readError(res *http.Response) error {
	e := &Error{}
	body, _ := io.ReadAll(res.Body)
	if json.Unmarshal(body, e) != nil || e.Message == "" {
		e.Message = res.Status
	}
	e.Code = res.StatusCode
	return e
}

// poll issues an HTTP GET against the URL, optionally checking for a cache,
// including optionally issuing a long poll that tries to wait until the
// value changes.  The return values are the new Etag and any error.  If the
// value did not change, then the returned etag will be "", but the error will
// be nil.
func (c *Client) poll(ctx context.Context, url string, etag string, wait int, v interface{}) (string, error) {

	req, e := http.NewRequest("GET", url, nil)
	if e != nil {
		return "", e
	}
	req = req.WithContext(ctx)
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
		if wait > 0 {
			req.Header.Set(PollEtagHeader, etag)
			req.Header.Set(PollTimeHeader, strconv.Itoa(wait))
		}
	}

	res, e := c.client.Do(req)
	if e != nil {
		return "", e
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotModified {
		return "", nil
	}
	if res.StatusCode != http.StatusOK {
		return "", readError(res)
	}
	if e := json.NewDecoder(res.Body).Decode(v); e != nil {
		return "", e
	}
	return res.Header.Get("Etag"), nil
}

func (c *Client) post(ctx context.Context, url string, body []byte, v interface{}) error {
	req, e := http.NewRequest("POST", url, bytes.NewReader(body))
	if e != nil {
		return e
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", mimeJson)
	if c.auth {
		req.SetBasicAuth(c.user, c.pass)
	}
	res, e := c.client.Do(req)
	if e != nil {
		return e
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return readError(res)
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(v)
}

func quick() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// StartService asks the server to launch spec.  It returns the spec as
// the server understood it.
func (c *Client) StartService(spec *nodee.LaunchSpec) (*nodee.LaunchSpec, error) {
	body, e := json.Marshal(spec)
	if e != nil {
		return nil, e
	}
	ctx, cancel := quick()
	defer cancel()
	var raw json.RawMessage
	if e = c.post(ctx, c.url("/service/start"), body, &raw); e != nil {
		return nil, e
	}
	return nodee.ParseSpec(bytes.NewReader(raw))
}

// StopService asks the server to stop whatever runs as pid.
func (c *Client) StopService(pid int) (*nodee.LaunchSpec, error) {
	ctx, cancel := quick()
	defer cancel()
	var raw json.RawMessage
	if e := c.post(ctx, c.url("/service/stop/"+strconv.Itoa(pid)), nil, &raw); e != nil {
		return nil, e
	}
	return nodee.ParseSpec(bytes.NewReader(raw))
}

func (c *Client) pollServices(ctx context.Context, secs int, last *ServiceList) (*ServiceList, error) {
	c.lock.Lock()
	cached := c.services
	c.lock.Unlock()

	otag := ""
	if last == nil {
		secs = 0
	} else if cached != nil && cached.etag != last.etag {
		// We already know of something newer.
		return cached, nil
	} else {
		otag = last.etag
	}

	v := &ServiceList{}
	etag, e := c.poll(ctx, c.url("/service/list"), otag, secs, &v.Services)
	if e != nil {
		return nil, e
	}
	if etag == "" && otag != "" {
		return last, nil
	}
	v.etag = etag
	c.lock.Lock()
	c.services = v
	c.lock.Unlock()
	return v, nil
}

// Services returns every process the server supervises.
func (c *Client) Services() ([]nodee.ProcessInfo, error) {
	ctx, cancel := quick()
	defer cancel()
	l, e := c.pollServices(ctx, 0, nil)
	if e != nil {
		return nil, e
	}
	return l.Services, nil
}

// WatchServices waits for the service list to differ from last, and
// returns the new one.  With a nil last it returns at once.
func (c *Client) WatchServices(ctx context.Context, last *ServiceList) (*ServiceList, error) {
	return c.pollServices(ctx, MaxPollTime, last)
}

func (c *Client) HostStatus() (*nodee.HostStatus, error) {
	ctx, cancel := quick()
	defer cancel()
	hs := &nodee.HostStatus{}
	if _, e := c.poll(ctx, c.url("/nodee/status"), "", 0, hs); e != nil {
		return nil, e
	}
	return hs, nil
}

func (c *Client) Artifacts() ([]string, error) {
	ctx, cancel := quick()
	defer cancel()
	var names []string
	if _, e := c.poll(ctx, c.url("/artifact/list"), "", 0, &names); e != nil {
		return nil, e
	}
	return names, nil
}

func (c *Client) pollLog(ctx context.Context, secs int, last *LogInfo) (*LogInfo, error) {
	otag := ""
	if last == nil {
		secs = 0
	} else {
		otag = last.etag
	}

	v := &LogInfo{}
	etag, e := c.poll(ctx, c.url("/nodee/log"), otag, secs, &v.Records)
	if e != nil {
		return nil, e
	}
	if etag == "" && otag != "" {
		return last, nil
	}
	v.etag = etag
	return v, nil
}

// WatchLog waits for the log to change from last.
func (c *Client) WatchLog(ctx context.Context, last *LogInfo) (*LogInfo, error) {
	return c.pollLog(ctx, MaxPollTime, last)
}

func (c *Client) GetLog() (*LogInfo, error) {
	ctx, cancel := quick()
	defer cancel()
	return c.pollLog(ctx, 0, nil)
}

// NewClient returns a Client handle.  The transport maybe nil to use
// a default transport, but it may also be adjusted to support additional
// options such as TLS.  baseURI is the base URL to use.
func NewClient(t *http.Transport, baseURI string) *Client {
	if t == nil {
		t = &http.Transport{}
	}
	return &Client{
		transport: t,
		base:      baseURI,
		client:    &http.Client{Transport: t},
	}
}
