/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package watchdog

import (
	"sync/atomic"
)

// Status is the watchdog state
type Status uint32

// All the states of the watchdog
const (
	Disarmed Status = iota
	Armed
	TimedOut
	SafeState
)

// StatusToString is a map from Status to string
var StatusToString = map[Status]string{
	Disarmed:  "Disarmed",
	Armed:     "Armed",
	TimedOut:  "TimedOut",
	SafeState: "SafeState",
}

func (s Status) String() string {
	if str, ok := StatusToString[s]; ok {
		return str
	}
	return "Unknown"
}

// IsTerminal is true when only a reset can leave the state
func (s Status) IsTerminal() bool {
	return s == SafeState
}

// IsActive is true while the watchdog expects feeds
func (s Status) IsActive() bool {
	return s == Armed
}

// state is the lock-free status machine. All transitions are compare-and-swap
// except safe state, which wins from any state.
type state struct {
	status atomic.Uint32
}

func (s *state) load() Status {
	st := Status(s.status.Load())
	if st > SafeState {
		return Disarmed
	}
	return st
}

func (s *state) transition(from, to Status) error {
	if s.status.CompareAndSwap(uint32(from), uint32(to)) {
		return nil
	}
	return &TransitionError{From: s.load(), To: to}
}

func (s *state) arm() error {
	return s.transition(Disarmed, Armed)
}

func (s *state) disarm() error {
	return s.transition(Armed, Disarmed)
}

func (s *state) timeout() error {
	return s.transition(Armed, TimedOut)
}

// canFeed maps the current state to the feed outcome
func (s *state) canFeed() error {
	switch s.load() {
	case Armed:
		return nil
	case TimedOut:
		return ErrTimedOut
	case SafeState:
		return ErrSafeStateAlreadyTriggered
	}
	return ErrNotArmed
}

func (s *state) triggerSafeState() error {
	for {
		cur := s.status.Load()
		if Status(cur) == SafeState {
			return ErrSafeStateAlreadyTriggered
		}
		if s.status.CompareAndSwap(cur, uint32(SafeState)) {
			return nil
		}
	}
}

func (s *state) reset() {
	s.status.Store(uint32(Disarmed))
}
