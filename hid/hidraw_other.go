//go:build !linux

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

package hid

import (
	"fmt"
	"runtime"

	"github.com/openracing/rt/rtstream"
)

// HIDRawWriter is only available on linux
type HIDRawWriter struct{}

// OpenHIDRaw is not supported on this platform
func OpenHIDRaw(path string) (*HIDRawWriter, error) {
	return nil, fmt.Errorf("hidraw %s is not supported on %s", path, runtime.GOOS)
}

// Write is never reached
func (w *HIDRawWriter) Write(_ []byte) error {
	return fmt.Errorf("hidraw is not supported on %s", runtime.GOOS)
}

// Close is a no-op
func (w *HIDRawWriter) Close() error {
	return nil
}

func classifyErrno(_ error) rtstream.IOError {
	return rtstream.ErrOther
}
