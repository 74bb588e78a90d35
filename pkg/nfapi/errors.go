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

package nfapi

import "errors"

var (
	// ErrTerminationSignal names the ONVM_SIGNAL_TERMINATION outcome: the
	// NF was asked to exit before it reached the Starting state. No
	// function in this package returns it.
	ErrTerminationSignal = errors.New("nfapi: termination requested before init completed")
	// ErrInitTimeout is returned by Init when the manager does not
	// admit the NF within the configured number of poll attempts.
	ErrInitTimeout = errors.New("nfapi: timed out waiting for admission")
	// ErrNotRunning is returned by operations that require a completed
	// Init (e.g. Run, Stop, SendMsg) when called beforehand.
	ErrNotRunning = errors.New("nfapi: context has not completed init")
)
