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
	"errors"
)

var (
	ErrNotFound    = errors.New("No such service")
	ErrNotRunning  = errors.New("Service is not running")
	ErrInvalidSpec = errors.New("Invalid service specification")
	ErrForkFailed  = errors.New("Unable to fork process")
	ErrNoIdentity  = errors.New("No free uid/gid available")
	ErrClosed      = errors.New("Supervisor is closed")
	ErrDuplicate   = errors.New("Service is already supervised")
	ErrBadConfig   = errors.New("Bad configuration")
)
