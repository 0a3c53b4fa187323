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
	"errors"
	"fmt"

	"github.com/openracing/rt/rtstream"
	"golang.org/x/sys/unix"
)

// HIDRawWriter writes output reports to a /dev/hidrawN node opened non-blocking
type HIDRawWriter struct {
	path string
	fd   int
}

// OpenHIDRaw opens a hidraw node for writing
func OpenHIDRaw(path string) (*HIDRawWriter, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return newHIDRawWriter(path, fd), nil
}

func newHIDRawWriter(path string, fd int) *HIDRawWriter {
	return &HIDRawWriter{path: path, fd: fd}
}

// Write sends one report with a single write(2)
func (w *HIDRawWriter) Write(b []byte) error {
	if w.fd < 0 {
		return rtstream.ErrDisconnected
	}
	n, err := unix.Write(w.fd, b)
	if err != nil {
		return classifyErrno(err)
	}
	if n < len(b) {
		return rtstream.ErrWouldBlock
	}
	return nil
}

// Close releases the device node
func (w *HIDRawWriter) Close() error {
	if w.fd < 0 {
		return nil
	}
	err := unix.Close(w.fd)
	w.fd = -1
	return err
}

// Path returns the device node path
func (w *HIDRawWriter) Path() string {
	return w.path
}

func classifyErrno(err error) rtstream.IOError {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return rtstream.ErrOther
	}
	switch errno {
	case unix.EAGAIN, unix.EINTR:
		return rtstream.ErrWouldBlock
	case unix.ENODEV, unix.EPIPE, unix.ENXIO, unix.EIO, unix.EBADF, unix.ESHUTDOWN:
		return rtstream.ErrDisconnected
	}
	return rtstream.ErrOther
}
