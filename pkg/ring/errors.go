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

package ring

import "errors"

var (
	// ErrFull is returned when an enqueue cannot make progress because
	// the ring has no free capacity.
	ErrFull = errors.New("ring: full")
	// ErrEmpty is returned when a dequeue finds nothing available.
	ErrEmpty = errors.New("ring: empty")
)
