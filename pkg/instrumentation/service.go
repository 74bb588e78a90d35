// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
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

package instrumentation

import (
	"sync"

	"go.opencensus.io/stats/view"

	ihttp "github.com/sdnfv/nfresmgr/pkg/instrumentation/http"
)

// Service bundles the Jaeger tracing exporter, the Prometheus metrics
// exporter and the HTTP server that serves them, together with any
// opencensus views registered against it through RegisterView. No package
// in this repository registers views of its own.
type Service struct {
	sync.RWMutex
	http    *ihttp.Server
	tracing tracing
	metrics metrics
	views   []*view.View
	running bool
}

// the package-wide instrumentation service, started by Setup and used by
// configNotify to apply configuration updates while running.
var svc *Service

// newService creates an instrumentation service instance.
func newService() *Service {
	return &Service{http: ihttp.NewServer()}
}

// RegisterView adds v to the set of opencensus views this service
// (re)registers on Start/reconfigure, the domain-specific replacement for
// the grpc views a generic RPC-serving instrumentation package would wire.
func RegisterView(v *view.View) {
	if svc == nil {
		svc = newService()
	}
	svc.Lock()
	defer svc.Unlock()
	svc.views = append(svc.views, v)
}

// Setup creates and starts the package-wide instrumentation service.
func Setup() error {
	if svc == nil {
		svc = newService()
	}
	return svc.Start()
}

// Finish stops the package-wide instrumentation service.
func Finish() {
	if svc != nil {
		svc.Stop()
	}
}

// Start starts the instrumentation service.
func (s *Service) Start() error {
	s.Lock()
	defer s.Unlock()
	return s.start()
}

// Stop stops the instrumentation service.
func (s *Service) Stop() {
	s.Lock()
	defer s.Unlock()
	s.stop()
}

// Restart restarts the instrumentation service.
func (s *Service) Restart() error {
	s.Lock()
	defer s.Unlock()
	s.stop()
	return s.start()
}

// reconfigure applies the current configuration to a running service,
// starting it if it had not been started yet.
func (s *Service) reconfigure() error {
	s.Lock()
	defer s.Unlock()

	if !s.running {
		return s.start()
	}

	if err := s.tracing.reconfigure(opt.JaegerAgent, opt.JaegerCollector, opt.Sampling); err != nil {
		return err
	}
	if err := s.metrics.reconfigure(s.http.GetMux(), opt.ReportingPeriod, opt.PrometheusExport); err != nil {
		return err
	}
	return s.http.Reconfigure(opt.HTTPEndpoint)
}

// TracingEnabled returns true if the Jaeger tracing sampler is not disabled.
func (s *Service) TracingEnabled() bool {
	s.RLock()
	defer s.RUnlock()
	return opt.Sampling > Disabled
}

// start starts the instrumentation service.
func (s *Service) start() error {
	if s.running {
		return nil
	}

	log.Info("starting instrumentation service...")

	if err := s.http.Start(opt.HTTPEndpoint); err != nil {
		return err
	}
	if err := s.tracing.start(opt.JaegerAgent, opt.JaegerCollector, opt.Sampling); err != nil {
		s.http.Stop()
		return err
	}
	if err := s.metrics.start(s.http.GetMux(), opt.ReportingPeriod, opt.PrometheusExport); err != nil {
		s.tracing.stop()
		s.http.Stop()
		return err
	}
	if err := s.registerViews(); err != nil {
		s.metrics.stop()
		s.tracing.stop()
		s.http.Stop()
		return err
	}

	s.running = true
	return nil
}

// stop stops the instrumentation service.
func (s *Service) stop() {
	if !s.running {
		return
	}

	s.unregisterViews()
	s.metrics.stop()
	s.tracing.stop()
	s.http.Stop()
	s.running = false
}

// registerViews registers every view accumulated by RegisterView.
func (s *Service) registerViews() error {
	if len(s.views) == 0 {
		return nil
	}
	if err := view.Register(s.views...); err != nil {
		return instrumentationError("failed to register views: %v", err)
	}
	return nil
}

// unregisterViews unregisters every view registered by registerViews.
func (s *Service) unregisterViews() {
	if len(s.views) == 0 {
		return
	}
	view.Unregister(s.views...)
}
