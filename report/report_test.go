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

package report

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTorqueFromNm(t *testing.T) {
	require.Equal(t, Torque(0), TorqueFromNm(0))
	require.Equal(t, Torque(256), TorqueFromNm(1))
	require.Equal(t, Torque(-384), TorqueFromNm(-1.5))
	require.Equal(t, TorqueMax, TorqueFromNm(1000))
	require.Equal(t, TorqueMin, TorqueFromNm(-1000))
	require.Equal(t, Torque(0), TorqueFromNm(math.NaN()))
	require.InDelta(t, 2.5, Torque(640).Nm(), 1e-9)
	require.Equal(t, "2.500Nm", Torque(640).String())
}

func TestOWP1Encode(t *testing.T) {
	e := NewOWP1Encoder(10)
	var buf [MaxReportSize]byte
	n := e.Encode(Torque(0x1234), 0xabcd, FlagHandsOnHint|FlagSaturationWarning, &buf)
	require.Equal(t, OWP1ReportLen, n)
	require.Equal(t, []byte{0x20, 0x34, 0x12, 0x03, 0xcd, 0xab}, buf[:n])

	d, err := Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, Torque(0x1234), d.Torque)
	require.Equal(t, uint16(0xabcd), d.Sequence)
	require.Equal(t, uint8(3), d.Flags)
}

func TestOWP1EncodeNegative(t *testing.T) {
	e := NewOWP1Encoder(10)
	var buf [MaxReportSize]byte
	n := e.Encode(Torque(-2), 1, 0, &buf)
	require.Equal(t, []byte{0x20, 0xfe, 0xff, 0x00, 0x01, 0x00}, buf[:n])
}

func TestOWP1EncodeZero(t *testing.T) {
	e := NewOWP1Encoder(10)
	buf := [MaxReportSize]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	n := e.EncodeZero(&buf)
	require.Equal(t, OWP1ReportLen, n)
	require.Equal(t, []byte{0x20, 0, 0, 0, 0, 0}, buf[:n])
}

func TestOWP1ClampRange(t *testing.T) {
	e := NewOWP1Encoder(-8)
	require.Equal(t, Torque(-2048), e.ClampMin())
	require.Equal(t, Torque(2048), e.ClampMax())
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte{0x20, 0})
	require.Error(t, err)
	_, err = Decode([]byte{0x21, 0, 0, 0, 0, 0})
	require.EqualError(t, err, "unexpected report id 0x21")
}
