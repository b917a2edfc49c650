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

// Package nodee supervises the processes of a single cluster node on
// behalf of an orchestrator.
//
// A service is launched in three stages that share one tenant identity
// (uid and gid): a download chore fetches the artifact, an install chore
// unpacks it into the service's root directory, and finally the service
// itself is started.  Each stage is a Process owned by a Supervisor, which
// reaps exited children and advances the chain, or restarts the service
// subject to its backoff and restart limit.
//
// The Supervisor also tracks resident set size and page fault counts for
// every live process.  These are the hints the node uses to steer the
// kernel's OOM killer towards low-value, memory-hungry services.
//
// Processes are never shared by value.  Callers get a Handle from the
// Supervisor and act through it; reads return ProcessInfo snapshots.
//
package nodee
