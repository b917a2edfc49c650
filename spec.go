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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// MaxOptionPairs is the most flag/value pairs passed to a startup script.
const MaxOptionPairs = 1024

// Option is a single command line flag and its value.
type Option struct {
	Flag  string
	Value string
}

// Options is an ordered set of flags.  Order is preserved, because the
// arguments are handed to the startup script in exactly this order.
type Options []Option

// Get returns the value of flag, and whether it is present.
func (o Options) Get(flag string) (string, bool) {
	for _, opt := range o {
		if opt.Flag == flag {
			return opt.Value, true
		}
	}
	return "", false
}

// Set returns options with flag set to value.  An existing flag keeps its
// position, a new one is appended.
func (o Options) Set(flag, value string) Options {
	for i := range o {
		if o[i].Flag == flag {
			o[i].Value = value
			return o
		}
	}
	return append(o, Option{Flag: flag, Value: value})
}

// Delete returns options without flag.
func (o Options) Delete(flag string) Options {
	for i := range o {
		if o[i].Flag == flag {
			return append(o[:i:i], o[i+1:]...)
		}
	}
	return o
}

func (o Options) clone() Options {
	if o == nil {
		return nil
	}
	return append(make(Options, 0, len(o)), o...)
}

// MarshalJSON writes the options as a JSON object, in order.
func (o Options) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, opt := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, e := json.Marshal(opt.Flag)
		if e != nil {
			return nil, e
		}
		v, e := json.Marshal(opt.Value)
		if e != nil {
			return nil, e
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of strings, keeping member order.
func (o *Options) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, e := dec.Token()
	if e != nil {
		return e
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("startupOptions must be an object")
	}
	var opts Options
	for dec.More() {
		tok, e = dec.Token()
		if e != nil {
			return e
		}
		flag := tok.(string)
		var value string
		if e = dec.Decode(&value); e != nil {
			return fmt.Errorf("startupOptions %q: %v", flag, e)
		}
		opts = opts.Set(flag, value)
	}
	if _, e = dec.Token(); e != nil {
		return e
	}
	*o = opts
	return nil
}

// LaunchSpec describes what to run for one service.  Once handed to a
// Supervisor a spec is never modified; chain stages get clones.
type LaunchSpec struct {
	StartupScript    string
	StartupOptions   Options
	ShutdownScript   string
	ArtifactURL      string
	ArtifactFilename string
	RestartPeriod    time.Duration
	MaxRestarts      int
	Coordinate       string
	Port             int
}

// Clone returns a deep copy of the spec.
func (s *LaunchSpec) Clone() *LaunchSpec {
	c := *s
	c.StartupOptions = s.StartupOptions.clone()
	return &c
}

// WithStartup returns a clone that runs script with opts instead.
func (s *LaunchSpec) WithStartup(script string, opts Options) *LaunchSpec {
	c := s.Clone()
	c.StartupScript = script
	c.StartupOptions = opts.clone()
	return c
}

// Name is the coordinate and port, which together identify a service
// on this node.  Coordinates cannot contain ':', so names are unique.
func (s *LaunchSpec) Name() string {
	return fmt.Sprintf("%s:%d", s.Coordinate, s.Port)
}

// ValidationError reports why a spec was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSpec
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate checks the fields any managed process needs.
func (s *LaunchSpec) Validate() error {
	switch {
	case s.Coordinate == "":
		return invalid("coordinate", "missing")
	case strings.ContainsAny(s.Coordinate, "/: \t\r\n"),
		s.Coordinate == ".", strings.Contains(s.Coordinate, ".."):
		return invalid("coordinate", "must not contain '/', ':', spaces or '..'")
	case s.Port < 1 || s.Port > 65535:
		return invalid("port", "must be between 1 and 65535")
	case s.RestartPeriod < 0:
		return invalid("restartPeriod", "must not be negative")
	case s.MaxRestarts < 0:
		return invalid("maxRestarts", "must not be negative")
	case len(s.StartupOptions) > MaxOptionPairs:
		return invalid("startupOptions",
			fmt.Sprintf("more than %d options", MaxOptionPairs))
	}
	if f := s.ArtifactFilename; f != "" {
		if f != filepath.Base(f) || f == "." || f == ".." {
			return invalid("artifactFilename", "must be a plain file name")
		}
	}
	return nil
}

// ValidateLaunch checks a spec for the full download/install/run chain,
// which also needs to know where the artifact comes from.
func (s *LaunchSpec) ValidateLaunch() error {
	if e := s.Validate(); e != nil {
		return e
	}
	if s.ArtifactURL == "" {
		return invalid("artifactUrl", "missing")
	}
	if s.ArtifactFilename == "" {
		return invalid("artifactFilename", "missing")
	}
	return nil
}

type specManifest struct {
	StartupScript    string  `json:"startupScript,omitempty"`
	StartupOptions   Options `json:"startupOptions,omitempty"`
	ShutdownScript   string  `json:"shutdownScript,omitempty"`
	ArtifactURL      string  `json:"artifactUrl,omitempty"`
	ArtifactFilename string  `json:"artifactFilename,omitempty"`
	RestartPeriod    float64 `json:"restartPeriod"`
	MaxRestarts      int     `json:"maxRestarts"`
	Coordinate       string  `json:"coordinate"`
	Port             int     `json:"port"`
}

// MarshalJSON writes the spec in the same form ParseSpec reads.
// The restart period is expressed in seconds.
func (s *LaunchSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(&specManifest{
		StartupScript:    s.StartupScript,
		StartupOptions:   s.StartupOptions,
		ShutdownScript:   s.ShutdownScript,
		ArtifactURL:      s.ArtifactURL,
		ArtifactFilename: s.ArtifactFilename,
		RestartPeriod:    s.RestartPeriod.Seconds(),
		MaxRestarts:      s.MaxRestarts,
		Coordinate:       s.Coordinate,
		Port:             s.Port,
	})
}

// ParseSpec decodes a JSON spec and validates it.  A leading UTF-8 byte
// order mark is ignored.
func ParseSpec(r io.Reader) (*LaunchSpec, error) {
	br := bufio.NewReader(r)
	if ch, _, e := br.ReadRune(); e == nil && ch != '\ufeff' {
		br.UnreadRune()
	}
	dec := json.NewDecoder(br)
	dec.DisallowUnknownFields()
	var m specManifest
	if e := dec.Decode(&m); e != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, e)
	}
	s := &LaunchSpec{
		StartupScript:    m.StartupScript,
		StartupOptions:   m.StartupOptions,
		ShutdownScript:   m.ShutdownScript,
		ArtifactURL:      m.ArtifactURL,
		ArtifactFilename: m.ArtifactFilename,
		RestartPeriod:    time.Duration(m.RestartPeriod * float64(time.Second)),
		MaxRestarts:      m.MaxRestarts,
		Coordinate:       m.Coordinate,
		Port:             m.Port,
	}
	if e := s.Validate(); e != nil {
		return nil, e
	}
	return s, nil
}
