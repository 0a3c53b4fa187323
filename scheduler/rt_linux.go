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

package scheduler

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

func applyRTSetup(setup RTSetup) error {
	if err := setup.Validate(); err != nil {
		return err
	}
	if setup.LockMemory {
		if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
			return fmt.Errorf("mlockall: %w", err)
		}
	}
	if setup.CPU >= 0 {
		var set unix.CPUSet
		set.Zero()
		set.Set(setup.CPU)
		if err := unix.SchedSetaffinity(0, &set); err != nil {
			return fmt.Errorf("pinning to cpu %d: %w", setup.CPU, err)
		}
	}
	if setup.HighPriority {
		attr := &unix.SchedAttr{
			Size:     unix.SizeofSchedAttr,
			Policy:   unix.SCHED_FIFO,
			Priority: uint32(setup.Priority),
		}
		if err := unix.SchedSetAttr(0, attr, 0); err != nil {
			return fmt.Errorf("setting SCHED_FIFO priority %d: %w", setup.Priority, err)
		}
	}
	return nil
}

// preciseSleepUntil blocks the OS thread in clock_nanosleep, then spins the last stretch
func preciseSleepUntil(deadline time.Time, spin time.Duration) {
	for {
		remaining := time.Until(deadline) - spin
		if remaining <= 0 {
			break
		}
		ts := unix.NsecToTimespec(int64(remaining))
		err := unix.ClockNanosleep(unix.CLOCK_MONOTONIC, 0, &ts, nil)
		if err == nil || !errors.Is(err, unix.EINTR) {
			break
		}
	}
	spinUntil(deadline)
}
