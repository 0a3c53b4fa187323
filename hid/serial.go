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
	"io"
	"os"

	"github.com/openracing/rt/rtstream"
	"go.bug.st/serial"
)

// DefaultBaudRate for wheelbases exposed as CDC-ACM serial devices
const DefaultBaudRate = 115200

type serialPort interface {
	io.Writer
	Close() error
}

// SerialWriter writes reports to a serial port. Reports are short enough to fit
// the driver TX buffer, so a write returns without waiting for the wire.
type SerialWriter struct {
	path string
	port serialPort
}

// OpenSerial opens the serial device at path
func OpenSerial(path string, baud int) (*SerialWriter, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", path, err)
	}
	return &SerialWriter{path: path, port: port}, nil
}

// Write sends one report
func (w *SerialWriter) Write(b []byte) error {
	n, err := w.port.Write(b)
	if err != nil {
		return classifySerialError(err)
	}
	if n < len(b) {
		return rtstream.ErrWouldBlock
	}
	return nil
}

// Close closes the port
func (w *SerialWriter) Close() error {
	return w.port.Close()
}

// Path returns the device path
func (w *SerialWriter) Path() string {
	return w.path
}

func classifySerialError(err error) rtstream.IOError {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortClosed, serial.PortNotFound, serial.InvalidSerialPort:
			return rtstream.ErrDisconnected
		}
		return rtstream.ErrOther
	}
	if errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return rtstream.ErrDisconnected
	}
	return classifyErrno(err)
}
