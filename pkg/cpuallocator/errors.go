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

package cpuallocator

import "errors"

var (
	// ErrNoCapacity is returned by Acquire when no core can satisfy the
	// request.
	ErrNoCapacity = errors.New("cpuallocator: no core capacity available")
	// ErrCorePolicyViolation is the per-core check result when a core
	// cannot satisfy the dedicated/shared policy (e.g. a dedicated
	// request against an already occupied core, or a shared request
	// against a dedicated core). Acquire then tries the other cores and
	// reports ErrNoCapacity if none fits.
	ErrCorePolicyViolation = errors.New("cpuallocator: core policy violation")
)
