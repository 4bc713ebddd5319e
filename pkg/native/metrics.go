// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package native

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matrixorigin/nativevec/pkg/common/moerr"
)

const (
	metricsNamespace = "nativevec"
	metricsSubsystem = "runtime"
)

type runtimeMetrics struct {
	allocateBytes   prometheus.Counter
	inuseBytes      prometheus.Gauge
	allocateObjects prometheus.Counter
	inuseObjects    prometheus.Gauge
	vectorGrow      prometheus.Counter
}

func newRuntimeMetrics(name string) *runtimeMetrics {
	labels := prometheus.Labels{"runtime": name}
	return &runtimeMetrics{
		allocateBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "allocate_bytes_total",
			Help:        "Bytes allocated by the runtime.",
			ConstLabels: labels,
		}),
		inuseBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "inuse_bytes",
			Help:        "Bytes currently held by the runtime.",
			ConstLabels: labels,
		}),
		allocateObjects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "allocate_objects_total",
			Help:        "Blocks allocated by the runtime.",
			ConstLabels: labels,
		}),
		inuseObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "inuse_objects",
			Help:        "Blocks currently held by the runtime.",
			ConstLabels: labels,
		}),
		vectorGrow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   metricsSubsystem,
			Name:        "vector_grow_total",
			Help:        "Buffer reallocations of vectors and bit vectors.",
			ConstLabels: labels,
		}),
	}
}

func (m *runtimeMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.allocateBytes,
		m.inuseBytes,
		m.allocateObjects,
		m.inuseObjects,
		m.vectorGrow,
	}
}

func (m *runtimeMetrics) register(reg prometheus.Registerer) error {
	for i, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			for _, registered := range m.collectors()[:i] {
				reg.Unregister(registered)
			}
			return moerr.NewInternalErrorNoCtx("register runtime metrics: %v", err)
		}
	}
	return nil
}

func (m *runtimeMetrics) unregister(reg prometheus.Registerer) {
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

func (m *runtimeMetrics) onGrow() {
	if m != nil {
		m.vectorGrow.Inc()
	}
}
