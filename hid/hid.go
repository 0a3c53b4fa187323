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
Package hid implements device writers for the real-time output stream.
Every writer returns rtstream IOErrors so the stream can tell a busy device from a lost one.
*/
package hid

import (
	"fmt"
	"sync/atomic"

	"github.com/openracing/rt/rtstream"
)

// Kind is a writer backend
type Kind string

// Supported backends
const (
	KindHIDRaw Kind = "hidraw"
	KindSerial Kind = "serial"
	KindNull   Kind = "null"
)

// Device is a writer that owns an OS resource
type Device interface {
	rtstream.Writer
	Close() error
}

// Open returns a Device of the given kind
func Open(kind Kind, path string, baud int) (Device, error) {
	switch kind {
	case KindHIDRaw:
		w, err := OpenHIDRaw(path)
		if err != nil {
			return nil, err
		}
		return w, nil
	case KindSerial:
		w, err := OpenSerial(path, baud)
		if err != nil {
			return nil, err
		}
		return w, nil
	case KindNull:
		return &NullWriter{}, nil
	}
	return nil, fmt.Errorf("unsupported device kind %q", kind)
}

// NullWriter accepts every report and drops it. Used for bench runs without hardware.
type NullWriter struct {
	frames atomic.Uint64
	bytes  atomic.Uint64
	closed atomic.Bool
}

// Write counts and discards b
func (w *NullWriter) Write(b []byte) error {
	if w.closed.Load() {
		return rtstream.ErrDisconnected
	}
	w.frames.Add(1)
	w.bytes.Add(uint64(len(b)))
	return nil
}

// Close makes every further write fail with ErrDisconnected
func (w *NullWriter) Close() error {
	w.closed.Store(true)
	return nil
}

// Frames returns number of accepted reports
func (w *NullWriter) Frames() uint64 {
	return w.frames.Load()
}

// Bytes returns number of accepted bytes
func (w *NullWriter) Bytes() uint64 {
	return w.bytes.Load()
}
