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
Package report implements the OWP-1 force-feedback torque output report.

Wire layout (little endian):

	byte 0     report id (0x20)
	byte 1-2   torque, signed Q8.8 newton-metres
	byte 3     flags
	byte 4-5   sequence number
*/
package report

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxReportSize is the size of the buffer every encoder writes into
const MaxReportSize = 8

// OWP1ReportID is the HID report id of the torque output report
const OWP1ReportID = 0x20

// OWP1ReportLen is the number of bytes of a single OWP-1 torque report
const OWP1ReportLen = 6

// Report flag bits
const (
	FlagHandsOnHint       uint8 = 0x01
	FlagSaturationWarning uint8 = 0x02
)

// Torque is a signed Q8.8 fixed point torque in newton-metres
type Torque int16

// Q8.8 bounds
const (
	TorqueMax Torque = math.MaxInt16
	TorqueMin Torque = math.MinInt16
)

const q88Scale = 256.0

// TorqueFromNm converts newton-metres to Q8.8, saturating at the int16 range
func TorqueFromNm(nm float64) Torque {
	if math.IsNaN(nm) {
		return 0
	}
	v := math.Round(nm * q88Scale)
	if v >= float64(TorqueMax) {
		return TorqueMax
	}
	if v <= float64(TorqueMin) {
		return TorqueMin
	}
	return Torque(v)
}

// Nm returns torque in newton-metres
func (t Torque) Nm() float64 {
	return float64(t) / q88Scale
}

func (t Torque) String() string {
	return fmt.Sprintf("%.3fNm", t.Nm())
}

// OWP1Encoder encodes torque commands into OWP-1 reports.
// Device clamp range is [MinTorque, MaxTorque].
type OWP1Encoder struct {
	MinTorque Torque
	MaxTorque Torque
}

// NewOWP1Encoder returns an encoder with a symmetric clamp range of +-maxTorqueNm
func NewOWP1Encoder(maxTorqueNm float64) *OWP1Encoder {
	limit := TorqueFromNm(math.Abs(maxTorqueNm))
	return &OWP1Encoder{
		MinTorque: -limit,
		MaxTorque: limit,
	}
}

// Encode writes a torque report into out and returns its length
func (e *OWP1Encoder) Encode(torque Torque, seq uint16, flags uint8, out *[MaxReportSize]byte) int {
	out[0] = OWP1ReportID
	binary.LittleEndian.PutUint16(out[1:3], uint16(torque))
	out[3] = flags
	binary.LittleEndian.PutUint16(out[4:6], seq)
	return OWP1ReportLen
}

// EncodeZero writes a zero-torque report into out and returns its length
func (e *OWP1Encoder) EncodeZero(out *[MaxReportSize]byte) int {
	out[0] = OWP1ReportID
	for i := 1; i < OWP1ReportLen; i++ {
		out[i] = 0
	}
	return OWP1ReportLen
}

// ClampMin returns the lowest torque the device accepts
func (e *OWP1Encoder) ClampMin() Torque {
	return e.MinTorque
}

// ClampMax returns the highest torque the device accepts
func (e *OWP1Encoder) ClampMax() Torque {
	return e.MaxTorque
}

// Decoded is an OWP-1 report parsed back into its fields
type Decoded struct {
	Torque   Torque
	Flags    uint8
	Sequence uint16
}

// Decode parses an OWP-1 report
func Decode(b []byte) (*Decoded, error) {
	if len(b) < OWP1ReportLen {
		return nil, fmt.Errorf("report too short: %d bytes, need %d", len(b), OWP1ReportLen)
	}
	if b[0] != OWP1ReportID {
		return nil, fmt.Errorf("unexpected report id 0x%02x", b[0])
	}
	return &Decoded{
		Torque:   Torque(binary.LittleEndian.Uint16(b[1:3])),
		Flags:    b[3],
		Sequence: binary.LittleEndian.Uint16(b[4:6]),
	}, nil
}
