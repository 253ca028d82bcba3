// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package clock isolates the one piece of process-wide mutable state the
// authorization core depends on: the current time.
package clock

import "time"

// Clock is an injectable source of wall-clock time. Flows and repositories
// take a Clock instead of calling time.Now() directly so tests can pin the
// timeline.
type Clock interface {
	Now() time.Time
}

// System is the production Clock, backed by time.Now.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Frozen is a test Clock that only advances when told to.
type Frozen struct {
	t time.Time
}

// NewFrozen returns a Frozen clock fixed at t.
func NewFrozen(t time.Time) *Frozen {
	return &Frozen{t: t}
}

func (f *Frozen) Now() time.Time { return f.t }

// Set pins the clock to t.
func (f *Frozen) Set(t time.Time) { f.t = t }

// Advance moves the clock forward by d.
func (f *Frozen) Advance(d time.Duration) { f.t = f.t.Add(d) }
