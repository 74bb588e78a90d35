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

package autoscale

import "errors"

// ErrReclaimFrontMismatch is logged (not returned to a caller — Tick has
// no error return, mirroring onvm_nf_scaling's void signature) when an
// idle child is not the front of its parent's sleep stack, the Go
// analogue of onvm_nf_scaling's own "error might happend..." guard.
var ErrReclaimFrontMismatch = errors.New("autoscale: idle instance is not the front of the sleep stack")
