// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/monitoring"
)

var _ monitoring.MonitorInterface = (*Monitor)(nil)

type Monitor struct {
	service string

	responseTime           *prometheus.HistogramVec
	dependencyAvailability *prometheus.GaugeVec

	logger logging.LoggerInterface
}

func (m *Monitor) GetService() string {
	return m.service
}

func (m *Monitor) SetResponseTimeMetric(tags map[string]string, value float64) error {
	metric, err := m.responseTime.GetMetricWith(tags)
	if err != nil {
		return err
	}

	metric.Observe(value)
	return nil
}

func (m *Monitor) SetDependencyAvailability(tags map[string]string, value float64) error {
	metric, err := m.dependencyAvailability.GetMetricWith(tags)
	if err != nil {
		return err
	}

	metric.Set(value)
	return nil
}

func (m *Monitor) registerMetrics() {
	m.responseTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "http_response_time_seconds",
			Help:        "Duration of HTTP requests.",
			ConstLabels: prometheus.Labels{"service": m.service},
		},
		[]string{"route", "method", "status"},
	)

	m.dependencyAvailability = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "dependency_available",
			Help:        "Availability of upstream dependencies.",
			ConstLabels: prometheus.Labels{"service": m.service},
		},
		[]string{"component"},
	)

	prometheus.MustRegister(m.responseTime, m.dependencyAvailability)
}

func NewMonitor(service string, logger logging.LoggerInterface) *Monitor {
	m := new(Monitor)

	m.service = service
	m.logger = logger

	m.registerMetrics()

	return m
}
