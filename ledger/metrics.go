// Copyright 2025 Blink Labs Software
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

package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ledgerMetrics struct {
	operationsTotal *prometheus.CounterVec
	plansLive       prometheus.Gauge
	vaultsLive      prometheus.Gauge
}

func (l *Ledger) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	l.metrics = &ledgerMetrics{
		operationsTotal: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kennel_ledger_operations_total",
				Help: "total ledger operations by type",
			},
			[]string{"op"},
		),
		plansLive: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "kennel_ledger_plans",
			Help: "current count of live plans",
		}),
		vaultsLive: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "kennel_ledger_vaults",
			Help: "current count of live voting vaults",
		}),
	}
}
