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

package watchdog

import (
	"errors"
	"fmt"
)

// Watchdog errors
var (
	ErrTimedOut                  = errors.New("watchdog timed out")
	ErrNotArmed                  = errors.New("watchdog not armed")
	ErrSafeStateAlreadyTriggered = errors.New("safe state already triggered")
	ErrInvalidTimeout            = errors.New("invalid watchdog timeout")
)

// TransitionError is returned when a state change is not allowed from the current state
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid watchdog transition %s -> %s", e.From, e.To)
}
