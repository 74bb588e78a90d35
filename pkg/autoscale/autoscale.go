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

// Package autoscale implements the autoscaling controller (spec component
// C7): a periodic tick that computes per-service packet rate, applies
// hysteresis thresholds to decide whether a service should wake a sleeping
// child, spawn a new one, or retire one to sleep, and reclaims
// permanently-idle sleepers. It is the Go analogue of onvm_nf_scaling and
// its static helpers in openNetVM's onvm_nf.c.
package autoscale

import (
	"time"

	logger "github.com/sdnfv/nfresmgr/pkg/log"

	"github.com/sdnfv/nfresmgr/pkg/lifecycle"
	"github.com/sdnfv/nfresmgr/pkg/metricsring"
	"github.com/sdnfv/nfresmgr/pkg/nfmsg"
	"github.com/sdnfv/nfresmgr/pkg/registry"
	"github.com/sdnfv/nfresmgr/pkg/servicemap"
)

const logSource = "autoscale"

var log = logger.NewLogger(logSource)

// BackPressureFunc is invoked when a service is overloaded but cannot grow
// any further (child limit reached or a spawn is already in flight). The
// controller does not implement a policy of its own here; spec.md §9 open
// question #3 defers the choice of back-pressure action (drop, rate
// limit, alert) to the caller.
type BackPressureFunc func(serviceID uint16, ppsOverload uint64)

// Config holds the tunables of the scaling decision, matching openNetVM's
// compile-time constants (Max_Child, the 10-tick wait counter and
// idle-time thresholds).
type Config struct {
	// MaxChildren is the maximum number of children a parent NF may
	// spawn (onvm_nf.h's Max_Child, 7 in openNetVM).
	MaxChildren int32
	// WaitCounterInit is the number of ticks a scale-down decision is
	// held off for after a scale-up (or wake), damping oscillation.
	WaitCounterInit int
	// IdleTicksThreshold is the number of consecutive sleeping ticks
	// after which the oldest sleeper is permanently reclaimed.
	IdleTicksThreshold int
}

// Controller runs the periodic scaling tick over the shared registry and
// service map owned by a lifecycle.Machine.
type Controller struct {
	cfg Config

	reg *registry.Registry
	svc *servicemap.ServiceMap
	m   *lifecycle.Machine

	sender lifecycle.Sender

	backPressure BackPressureFunc

	rxLast    map[uint16]uint64
	smoothers map[uint16]metricsring.SampleBuffer
}

// New builds a Controller. sender delivers SCALE/STOP control messages to
// NF processes (typically the same dispatch.Dispatcher passed to
// lifecycle.Machine.SetSender). backPressure may be nil.
func New(cfg Config, m *lifecycle.Machine, sender lifecycle.Sender, backPressure BackPressureFunc) *Controller {
	if cfg.MaxChildren <= 0 {
		cfg.MaxChildren = 7
	}
	if cfg.WaitCounterInit <= 0 {
		cfg.WaitCounterInit = 10
	}
	if cfg.IdleTicksThreshold <= 0 {
		cfg.IdleTicksThreshold = 10
	}
	return &Controller{
		cfg:          cfg,
		reg:          m.Registry(),
		svc:          m.ServiceMap(),
		m:            m,
		sender:       sender,
		backPressure: backPressure,
		rxLast:       make(map[uint16]uint64),
		smoothers:    make(map[uint16]metricsring.SampleBuffer),
	}
}

// SetBackPressure replaces the back-pressure hook after construction.
func (c *Controller) SetBackPressure(fn BackPressureFunc) { c.backPressure = fn }

// Tick runs one scaling pass over every valid NF and every populated
// service, given the wall-clock interval (in whole seconds) elapsed since
// the previous call, mirroring onvm_nf_scaling(unsigned difftime).
func (c *Controller) Tick(elapsed time.Duration) {
	difftime := uint64(elapsed / time.Second)
	if difftime == 0 {
		difftime = 1
	}

	rxPerService := make([]uint64, c.svc.MaxServices())

	c.reg.ForEachValid(func(s *registry.Slot) {
		rxNow := s.Counters.LoadRX()
		last := c.rxLast[s.InstanceID]
		var pps uint64
		if rxNow > last {
			pps = (rxNow - last) / difftime
		}
		c.rxLast[s.InstanceID] = rxNow

		if s.ParentID != 0 {
			c.updateIdleBookkeeping(s)
		}

		if int(s.ServiceID) < len(rxPerService) {
			rxPerService[s.ServiceID] += pps
		}
		c.smooth(s.InstanceID, float64(pps))
	})

	for i := 0; i < c.svc.MaxServices(); i++ {
		svcID := uint16(i)
		n := c.svc.Count(svcID)
		if n == 0 {
			continue
		}

		parentID := c.svc.Parent(svcID)
		parent := c.reg.Slot(parentID)
		if parent == nil {
			continue
		}

		hThreshold := quickMultiply(parent.HandleRate, uint64(n))
		lThreshold := quickMultiply(parent.HandleRate, uint64(n-1))
		pps := rxPerService[svcID]

		switch {
		case pps >= hThreshold:
			c.scaleUp(svcID, parent, pps)
		case pps < lThreshold && parent.ChildrenCount() != int32(len(parent.SleepInstance)):
			c.scaleDown(svcID, parent)
		}
	}
}

// updateIdleBookkeeping implements the per-child half of onvm_nf_scaling's
// main loop: advance idle_ticks while asleep, reset it while awake, and
// reclaim the child once it has been the front-of-stack sleeper for
// IdleTicksThreshold consecutive ticks.
func (c *Controller) updateIdleBookkeeping(s *registry.Slot) {
	if s.IdleTicks >= c.cfg.IdleTicksThreshold {
		parent := c.reg.Slot(s.ParentID)
		if parent == nil {
			return
		}
		if len(parent.SleepInstance) > 0 && parent.SleepInstance[0] == s.InstanceID {
			c.reclaim(parent, s)
		} else {
			log.Warn("%v: instance %d idle-expired but not the front sleeper of parent %d", ErrReclaimFrontMismatch, s.InstanceID, s.ParentID)
		}
		return
	}

	if s.SleepFlag {
		s.IdleTicks++
		log.Debug("instance %d idle for %d ticks", s.InstanceID, s.IdleTicks)
	} else {
		s.IdleTicks = 0
	}
}

// reclaim permanently retires the oldest sleeping child: it is popped off
// the front of the parent's sleep stack and sent a STOP message. The slot
// itself is only returned to Empty once the NF acknowledges by posting
// NF_STOPPING through the dispatcher, mirroring onvm_nf_instance_stop.
func (c *Controller) reclaim(parent, child *registry.Slot) {
	rest := make([]uint16, len(parent.SleepInstance)-1)
	copy(rest, parent.SleepInstance[1:])
	parent.SleepInstance = rest
	parent.WaitFlag = true

	if c.sender != nil {
		if err := c.sender.Send(child.InstanceID, nfmsg.Stop, nil); err != nil {
			log.Warn("failed to send STOP to reclaimed instance %d: %v", child.InstanceID, err)
		}
	}
	log.Info("reclaimed idle instance %d (parent %d)", child.InstanceID, parent.InstanceID)
}

// scaleUp implements the H-threshold branch: prefer waking a sleeper,
// otherwise spawn a new child if room and no spawn is already pending,
// otherwise defer to the back-pressure hook.
func (c *Controller) scaleUp(svcID uint16, parent *registry.Slot, pps uint64) {
	parent.WaitCounter = c.cfg.WaitCounterInit

	if len(parent.SleepInstance) > 0 {
		if _, err := c.m.Wake(parent.InstanceID); err != nil {
			log.Warn("service %d: wake failed: %v", svcID, err)
		}
		return
	}

	if parent.ChildrenCount() < c.cfg.MaxChildren && !parent.WaitFlag {
		c.scaleOut(svcID, parent)
		return
	}

	if c.backPressure != nil {
		c.backPressure(svcID, pps)
	} else {
		log.Debug("service %d overloaded (pps=%d) with no spawn room; back pressure deferred", svcID, pps)
	}
}

// scaleOut sends a SCALE message to the service's parent NF, which is
// expected to thread-spawn a new child and admit it itself.
func (c *Controller) scaleOut(svcID uint16, parent *registry.Slot) {
	parent.WaitFlag = true
	if c.sender != nil {
		if err := c.sender.Send(parent.InstanceID, nfmsg.Scale, nil); err != nil {
			log.Warn("service %d: failed to send SCALE to parent %d: %v", svcID, parent.InstanceID, err)
		}
	}
	log.Info("service %d: requested scale-out from parent %d", svcID, parent.InstanceID)
}

// scaleDown implements the L-threshold branch: hold off while the grace
// period counter is still running, otherwise put the newest child to
// sleep.
func (c *Controller) scaleDown(svcID uint16, parent *registry.Slot) {
	if parent.WaitCounter > 0 {
		parent.WaitCounter--
		log.Debug("service %d: waiting %d more ticks before scaling down", svcID, parent.WaitCounter)
		return
	}
	if parent.WaitFlag {
		return
	}

	sleepCandidate := c.svc.Last(svcID)
	if sleepCandidate == 0 {
		return
	}
	if err := c.m.Sleep(sleepCandidate); err != nil {
		log.Warn("service %d: failed to sleep instance %d: %v", svcID, sleepCandidate, err)
	}
}

func (c *Controller) smooth(instanceID uint16, pps float64) {
	sb, ok := c.smoothers[instanceID]
	if !ok {
		sb = metricsring.NewMetricsRing(16)
		c.smoothers[instanceID] = sb
	}
	sb.Push(pps)
}

// SmoothedPPS returns the EWMA-smoothed packet rate tracked for instance
// id for diagnostic purposes only; it has no influence on the H/L
// hysteresis decision above, which always uses the raw per-tick rate.
func (c *Controller) SmoothedPPS(instanceID uint16) float64 {
	sb, ok := c.smoothers[instanceID]
	if !ok {
		return 0
	}
	return sb.EWMA()
}

// quickMultiply mirrors onvm_nf_quick_multiplication's shift-based fast
// paths for the small multipliers the hysteresis thresholds actually use.
func quickMultiply(handleRate uint64, multiplier uint64) uint64 {
	switch multiplier {
	case 1:
		return handleRate
	case 2:
		return handleRate << 1
	case 3:
		return (handleRate << 1) + handleRate
	case 4:
		return handleRate << 2
	case 5:
		return (handleRate << 2) + handleRate
	default:
		return handleRate * multiplier
	}
}
