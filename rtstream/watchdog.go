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

// seqWatchdog counts consecutive ticks on which the producer sequence did not change
type seqWatchdog struct {
	seen          bool
	lastSequence  uint16
	staleTicks    uint32
	maxStaleTicks uint32
}

func newSeqWatchdog(maxStaleTicks uint32) seqWatchdog {
	return seqWatchdog{maxStaleTicks: maxStaleTicks}
}

func (w *seqWatchdog) reset() {
	w.seen = false
	w.lastSequence = 0
	w.staleTicks = 0
}

// timedOut observes seq and reports whether it has been stale for maxStaleTicks ticks
func (w *seqWatchdog) timedOut(seq uint16) bool {
	if !w.seen {
		w.seen = true
		w.lastSequence = seq
		w.staleTicks = 0
		return false
	}
	if seq != w.lastSequence {
		w.lastSequence = seq
		w.staleTicks = 0
		return false
	}
	if w.staleTicks < ^uint32(0) {
		w.staleTicks++
	}
	return w.staleTicks >= w.maxStaleTicks
}
