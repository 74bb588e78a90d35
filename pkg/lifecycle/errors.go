// Copyright 2019 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import "errors"

var (
	// ErrInvalidTransition is returned when a transition is attempted
	// from a status that does not permit it.
	ErrInvalidTransition = errors.New("lifecycle: invalid state transition")
	// ErrParentHasChildren is returned by Stop when called on a parent NF
	// whose live-children count has not yet reached zero (spec.md §4.8,
	// §9 open question #2).
	ErrParentHasChildren = errors.New("lifecycle: parent still has live children")
	// ErrNoSleepers is returned by Wake when the parent has no sleeping
	// children to wake.
	ErrNoSleepers = errors.New("lifecycle: no sleeping children to wake")
	// ErrUnknownInstance is returned when an operation names an instance
	// id outside the table.
	ErrUnknownInstance = errors.New("lifecycle: unknown instance id")
)
