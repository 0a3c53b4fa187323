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

package rtstream

import (
	"errors"
)

// IOError is the error taxonomy of the real-time output path.
// Values are comparable so returning one never allocates.
type IOError uint8

// Real-time I/O errors
const (
	// ErrWouldBlock means the device was busy; the frame is dropped and retried next tick
	ErrWouldBlock IOError = iota + 1
	// ErrDisconnected means the device is gone
	ErrDisconnected
	// ErrWatchdogTimeout means the producer stopped advancing its sequence
	ErrWatchdogTimeout
	// ErrOther is any other write failure
	ErrOther
)

var ioErrorToString = map[IOError]string{
	ErrWouldBlock:      "write would block",
	ErrDisconnected:    "device disconnected",
	ErrWatchdogTimeout: "sequence watchdog timeout",
	ErrOther:           "write failed",
}

func (e IOError) Error() string {
	if s, ok := ioErrorToString[e]; ok {
		return s
	}
	return "unknown rt io error"
}

// Classify maps an arbitrary writer error onto the IOError taxonomy
func Classify(err error) IOError {
	if err == nil {
		return 0
	}
	var ioErr IOError
	if errors.As(err, &ioErr) {
		return ioErr
	}
	return ErrOther
}
