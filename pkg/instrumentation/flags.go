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

package instrumentation

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opencensus.io/trace"

	logger "github.com/sdnfv/nfresmgr/pkg/log"

	"github.com/sdnfv/nfresmgr/pkg/config"
)

// ServiceName identifies this process to the Jaeger and Prometheus exporters.
var ServiceName = "nfresmgr"

var log = logger.NewLogger("instrumentation")

// Sampling is a pre-defined or explicit probabilistic trace sampling rate.
type Sampling float64

const (
	// Disabled turns tracing off entirely.
	Disabled Sampling = 0.0
	// Production samples a small fraction of traces.
	Production Sampling = 0.1
	// Testing samples every trace.
	Testing Sampling = 1.0
)

// Parse sets s from one of the named presets or a bare probability.
func (s *Sampling) Parse(value string) error {
	switch value {
	case "disabled", "":
		*s = Disabled
	case "production":
		*s = Production
	case "testing", "full":
		*s = Testing
	default:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return instrumentationError("invalid sampling rate %q: %v", value, err)
		}
		*s = Sampling(f)
	}
	return nil
}

// String renders s as one of the named presets, or a bare probability.
func (s Sampling) String() string {
	switch {
	case s <= 0.0:
		return "disabled"
	case s <= 0.1:
		return "production"
	case s >= 1.0:
		return "testing"
	default:
		return strconv.FormatFloat(float64(s), 'f', -1, 64)
	}
}

// Set implements flag.Value, so Sampling can be used directly with Module.Var.
func (s *Sampling) Set(value string) error { return s.Parse(value) }

// Sampler returns the opencensus trace.Sampler corresponding to s.
func (s Sampling) Sampler() trace.Sampler {
	switch {
	case s <= 0.0:
		return trace.NeverSample()
	case s >= 1.0:
		return trace.AlwaysSample()
	default:
		return trace.ProbabilitySampler(float64(s))
	}
}

// options encapsulates our configurable instrumentation parameters.
type options struct {
	// Sampling is the trace sampling rate.
	Sampling Sampling
	// JaegerCollector is the Jaeger collector endpoint.
	JaegerCollector string
	// JaegerAgent is the Jaeger agent endpoint.
	JaegerAgent string
	// HTTPEndpoint is where the instrumentation HTTP server (Prometheus
	// /metrics, introspection) listens; empty disables it.
	HTTPEndpoint string
	// PrometheusExport enables the Prometheus metrics exporter.
	PrometheusExport bool
	// ReportingPeriod is how often opencensus views are reported upstream.
	ReportingPeriod time.Duration
}

// Our instrumentation options.
var opt = defaultOptions()

func defaultOptions() *options {
	collector := os.Getenv("JAEGER_COLLECTOR")
	agent := os.Getenv("JAEGER_AGENT")
	if collector == "" {
		collector = "http://localhost:14268/api/traces"
	}
	if agent == "" {
		agent = "localhost:6831"
	}
	return &options{
		Sampling:         Disabled,
		JaegerCollector:  collector,
		JaegerAgent:      agent,
		HTTPEndpoint:     ":8888",
		PrometheusExport: true,
		ReportingPeriod:  5 * time.Second,
	}
}

func instrumentationError(format string, args ...interface{}) error {
	return fmt.Errorf("instrumentation: "+format, args...)
}

// configNotify is our configuration update notification handler.
func configNotify(event config.Event, source config.Source) error {
	log.Info("instrumentation configuration %s", event)
	if svc != nil {
		return svc.reconfigure()
	}
	return nil
}

// Register us for configuration handling.
func init() {
	m := config.GetModule("instrumentation")
	m.Var(&opt.Sampling, "trace-sampling",
		"trace sampling rate: disabled, production, testing or a bare probability")
	m.StringVar(&opt.JaegerCollector, "jaeger-collector", opt.JaegerCollector,
		"Jaeger collector endpoint")
	m.StringVar(&opt.JaegerAgent, "jaeger-agent", opt.JaegerAgent,
		"Jaeger agent endpoint")
	m.StringVar(&opt.HTTPEndpoint, "instrumentation-http", opt.HTTPEndpoint,
		"address the instrumentation HTTP server listens on, empty to disable")
	m.BoolVar(&opt.PrometheusExport, "prometheus-export", opt.PrometheusExport,
		"export collected metrics to Prometheus")
	m.DurationVar(&opt.ReportingPeriod, "instrumentation-report-period", opt.ReportingPeriod,
		"how often to report collected stats upstream")
	m.WatchUpdates(configNotify)
}
