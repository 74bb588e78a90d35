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

package registry

import "errors"

var (
	// ErrNoIDs is returned when no free instance id could be allocated
	// (NF table full).
	ErrNoIDs = errors.New("registry: no free instance ids")
	// ErrIDConflict is returned when a caller-supplied instance id is
	// already occupied.
	ErrIDConflict = errors.New("registry: instance id already in use")
	// ErrUnknownInstance is returned when an operation references an
	// instance id that does not currently exist.
	ErrUnknownInstance = errors.New("registry: unknown instance id")
)
