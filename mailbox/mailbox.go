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

/*
Package mailbox implements the lock-free command channel between the torque
producer and the real-time output stream.

Every field is an independent atomic. There is no cross-field atomicity: a
reader may observe a torque from one publish together with the sequence of
the next one. Last write wins, nothing is queued.
*/
package mailbox

import (
	"sync/atomic"

	"github.com/openracing/rt/report"
)

// TorqueMailbox is the latest torque command. Zero value is disarmed and ready to use.
type TorqueMailbox struct {
	armed atomic.Bool
	// the stdlib has no 8/16 bit atomics, narrow values are kept in wider words
	torque atomic.Int32
	seq    atomic.Uint32
	flags  atomic.Uint32
}

// New returns an empty disarmed mailbox
func New() *TorqueMailbox {
	return &TorqueMailbox{}
}

// Arm enables torque output
func (m *TorqueMailbox) Arm() {
	m.armed.Store(true)
}

// Disarm forces zero torque output from the next tick on
func (m *TorqueMailbox) Disarm() {
	m.armed.Store(false)
}

// SetArmed stores the armed flag
func (m *TorqueMailbox) SetArmed(armed bool) {
	m.armed.Store(armed)
}

// Armed reports whether output is enabled
func (m *TorqueMailbox) Armed() bool {
	return m.armed.Load()
}

// SetTorque stores the requested torque
func (m *TorqueMailbox) SetTorque(t report.Torque) {
	m.torque.Store(int32(t))
}

// Torque returns the requested torque
func (m *TorqueMailbox) Torque() report.Torque {
	return report.Torque(m.torque.Load())
}

// SetSequence stores the producer sequence number
func (m *TorqueMailbox) SetSequence(seq uint16) {
	m.seq.Store(uint32(seq))
}

// Sequence returns the producer sequence number
func (m *TorqueMailbox) Sequence() uint16 {
	return uint16(m.seq.Load())
}

// SetFlags stores the report flags
func (m *TorqueMailbox) SetFlags(flags uint8) {
	m.flags.Store(uint32(flags))
}

// Flags returns the report flags
func (m *TorqueMailbox) Flags() uint8 {
	return uint8(m.flags.Load())
}

// Publish stores torque and flags, then advances the sequence by one (wrapping at 2^16).
// It must only be used by a single producer. Returns the new sequence.
func (m *TorqueMailbox) Publish(t report.Torque, flags uint8) uint16 {
	m.SetTorque(t)
	m.SetFlags(flags)
	seq := m.Sequence() + 1
	m.SetSequence(seq)
	return seq
}

// Snapshot is a point-in-time view of the mailbox, for diagnostics only
type Snapshot struct {
	Armed    bool
	Torque   report.Torque
	Sequence uint16
	Flags    uint8
}

// Snapshot loads every field individually
func (m *TorqueMailbox) Snapshot() Snapshot {
	return Snapshot{
		Armed:    m.Armed(),
		Torque:   m.Torque(),
		Sequence: m.Sequence(),
		Flags:    m.Flags(),
	}
}
