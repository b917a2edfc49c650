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

const (
	mimeJson = "application/json; charset=UTF-8"
	mimeText = "text/plain; charset=UTF-8"
	mimeHtml = "text/html; charset=UTF-8"
)

// A client sending PollEtagHeader along with If-None-Match asks the
// server to hold the request until the Etag changes, for at most
// PollTimeHeader seconds.
const (
	PollEtagHeader = "X-Nodee-Poll-Etag"
	PollTimeHeader = "X-Nodee-Poll-Time"
)

// StatusHeader carries a short human readable summary of the answer.
const StatusHeader = "X-Nodee-Status"

// MaxPollTime bounds how long a long poll is held.
const MaxPollTime = 300

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}
