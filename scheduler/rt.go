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
	"fmt"
	"time"
)

// RTSetup describes how the real-time thread is configured
type RTSetup struct {
	// HighPriority switches the thread to SCHED_FIFO with Priority
	HighPriority bool `yaml:"high_priority"`
	Priority     int  `yaml:"priority"`
	// LockMemory pins current and future pages
	LockMemory bool `yaml:"lock_memory"`
	// CPU pins the thread to one core, negative means no pinning
	CPU int `yaml:"cpu"`
}

// DefaultRTSetup enables everything but CPU pinning
func DefaultRTSetup() RTSetup {
	return RTSetup{
		HighPriority: true,
		Priority:     80,
		LockMemory:   true,
		CPU:          -1,
	}
}

// Validate RTSetup is sane
func (r RTSetup) Validate() error {
	if r.HighPriority && (r.Priority < 1 || r.Priority > 99) {
		return fmt.Errorf("rt priority must be in [1, 99], got %d", r.Priority)
	}
	return nil
}

// spinUntil busy waits for the deadline
func spinUntil(deadline time.Time) {
	for time.Now().Before(deadline) {
	}
}
