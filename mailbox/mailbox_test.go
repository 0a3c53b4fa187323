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

package mailbox

import (
	"sync"
	"testing"

	"github.com/openracing/rt/report"
	"github.com/stretchr/testify/require"
)

func TestMailboxZeroValue(t *testing.T) {
	var m TorqueMailbox
	require.False(t, m.Armed())
	require.Equal(t, report.Torque(0), m.Torque())
	require.Equal(t, uint16(0), m.Sequence())
	require.Equal(t, uint8(0), m.Flags())
}

func TestMailboxFields(t *testing.T) {
	m := New()
	m.Arm()
	require.True(t, m.Armed())
	m.SetTorque(report.TorqueMin)
	require.Equal(t, report.TorqueMin, m.Torque())
	m.SetTorque(report.TorqueMax)
	require.Equal(t, report.TorqueMax, m.Torque())
	m.SetSequence(65535)
	require.Equal(t, uint16(65535), m.Sequence())
	m.SetFlags(0xff)
	require.Equal(t, uint8(0xff), m.Flags())
	m.Disarm()
	require.False(t, m.Armed())
	m.SetArmed(true)
	require.True(t, m.Armed())
}

func TestMailboxPublishWraps(t *testing.T) {
	m := New()
	m.SetSequence(65534)
	require.Equal(t, uint16(65535), m.Publish(100, report.FlagHandsOnHint))
	require.Equal(t, uint16(0), m.Publish(-100, 0))
	s := m.Snapshot()
	require.Equal(t, Snapshot{Torque: -100, Sequence: 0, Flags: 0}, s)
}

func TestMailboxConcurrentAccess(t *testing.T) {
	m := New()
	m.Arm()
	var wg sync.WaitGroup
	bad := 0
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			m.Publish(report.Torque(i%512), 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10000; i++ {
			if tq := m.Torque(); tq < 0 || tq >= 512 {
				bad++
			}
			_ = m.Sequence()
		}
	}()
	wg.Wait()
	require.Zero(t, bad)
	require.Equal(t, uint16(10000), m.Sequence())
}
