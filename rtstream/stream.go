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
Package rtstream implements the per-tick torque output state machine.

On every tick the stream reads the command mailbox, checks the producer is still
advancing its sequence, clamps the requested torque and hands one encoded report to
the device writer. Any fault drives the output to zero and disarms the mailbox.
Tick never blocks, allocates or logs.
*/
package rtstream

import (
	"fmt"
	"math"

	"github.com/openracing/rt/mailbox"
	"github.com/openracing/rt/report"
)

// Writer sends one encoded report to the device without blocking.
// Implementations return nil or one of ErrWouldBlock, ErrDisconnected, ErrOther.
type Writer interface {
	Write(b []byte) error
}

// Encoder turns a torque command into device report bytes
type Encoder interface {
	Encode(torque report.Torque, seq uint16, flags uint8, out *[report.MaxReportSize]byte) int
	EncodeZero(out *[report.MaxReportSize]byte) int
	ClampMin() report.Torque
	ClampMax() report.Torque
}

// Config of the output stream
type Config struct {
	// UserAbsLimit caps |torque| on top of the device range
	UserAbsLimit int32 `yaml:"user_abs_limit"`
	// WatchdogMaxStaleTicks is how many ticks the sequence may stay unchanged while armed
	WatchdogMaxStaleTicks uint32 `yaml:"watchdog_max_stale_ticks"`
}

// DefaultConfig returns a Config with no user limit and a 100 tick watchdog
func DefaultConfig() Config {
	return Config{
		UserAbsLimit:          math.MaxInt16,
		WatchdogMaxStaleTicks: 100,
	}
}

// Validate Config is sane
func (c *Config) Validate() error {
	if c.WatchdogMaxStaleTicks == 0 {
		return fmt.Errorf("watchdog_max_stale_ticks must be greater than zero")
	}
	return nil
}

// Counters are per-stream event counts, owned by the ticking goroutine
type Counters struct {
	Ticks            uint64
	Writes           uint64
	WouldBlock       uint64
	ZeroReports      uint64
	WatchdogTimeouts uint64
	WriteFaults      uint64
}

// Stream is the real-time torque output stream. It is not safe for concurrent use:
// a single goroutine calls Tick, producers talk to it only through the mailbox.
type Stream struct {
	mailbox      *mailbox.TorqueMailbox
	writer       Writer
	encoder      Encoder
	userAbsLimit report.Torque
	watchdog     seqWatchdog
	buffer       [report.MaxReportSize]byte
	counters     Counters
	lastWriteOK  bool
}

// New creates a Stream over the given mailbox, writer and encoder
func New(mb *mailbox.TorqueMailbox, w Writer, e Encoder, cfg Config) *Stream {
	return &Stream{
		mailbox:      mb,
		writer:       w,
		encoder:      e,
		userAbsLimit: normalizeLimit(cfg.UserAbsLimit),
		watchdog:     newSeqWatchdog(cfg.WatchdogMaxStaleTicks),
	}
}

func normalizeLimit(limit int32) report.Torque {
	if limit < 0 {
		limit = -limit
	}
	if limit > math.MaxInt16 || limit < 0 {
		return report.TorqueMax
	}
	return report.Torque(limit)
}

// SetUserAbsLimit updates the user torque cap, applied from the next tick
func (s *Stream) SetUserAbsLimit(limit int32) {
	s.userAbsLimit = normalizeLimit(limit)
}

// UserAbsLimit returns the effective user torque cap
func (s *Stream) UserAbsLimit() report.Torque {
	return s.userAbsLimit
}

// Counters returns a copy of the stream counters
func (s *Stream) Counters() Counters {
	return s.counters
}

// LastWriteOK reports whether the device accepted the most recent report, zero reports included.
// A write that would block counts as accepted.
func (s *Stream) LastWriteOK() bool {
	return s.lastWriteOK
}

// Tick runs one output cycle
func (s *Stream) Tick() error {
	if !s.mailbox.Armed() {
		return s.TickZero()
	}
	s.counters.Ticks++

	requested := s.mailbox.Torque()
	seq := s.mailbox.Sequence()
	flags := s.mailbox.Flags()

	if s.watchdog.timedOut(seq) {
		s.counters.WatchdogTimeouts++
		s.emitZero()
		s.mailbox.Disarm()
		return ErrWatchdogTimeout
	}

	torque := ClampTorque(requested, s.encoder.ClampMin(), s.encoder.ClampMax(), s.userAbsLimit)
	n := s.encoder.Encode(torque, seq, flags, &s.buffer)

	err := s.writer.Write(s.buffer[:n])
	if err == nil {
		s.counters.Writes++
		s.lastWriteOK = true
		return nil
	}
	if Classify(err) == ErrWouldBlock {
		s.counters.WouldBlock++
		s.lastWriteOK = true
		return nil
	}
	s.counters.WriteFaults++
	s.emitZero()
	s.mailbox.Disarm()
	s.watchdog.reset()
	return err
}

// TickZero runs one output cycle as if the mailbox were disarmed, whatever its state
func (s *Stream) TickZero() error {
	s.counters.Ticks++
	s.emitZero()
	s.watchdog.reset()
	return nil
}

// emitZero makes a best-effort attempt to send a zero torque report
func (s *Stream) emitZero() {
	s.counters.ZeroReports++
	n := s.encoder.EncodeZero(&s.buffer)
	err := s.writer.Write(s.buffer[:n])
	s.lastWriteOK = err == nil || Classify(err) == ErrWouldBlock
}

// ClampTorque limits requested to the device range, then to +-userAbs, then to the int16 range
func ClampTorque(requested, devMin, devMax, userAbs report.Torque) report.Torque {
	v := int32(requested)
	v = clamp(v, int32(devMin), int32(devMax))
	limit := int32(userAbs)
	if limit < 0 {
		limit = -limit
	}
	v = clamp(v, -limit, limit)
	return report.Torque(clamp(v, math.MinInt16, math.MaxInt16))
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
