// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package monitoring

var _ MonitorInterface = (*NoopMonitor)(nil)

type NoopMonitor struct{}

func (m *NoopMonitor) GetService() string {
	return "noop"
}

func (m *NoopMonitor) SetResponseTimeMetric(tags map[string]string, value float64) error {
	return nil
}

func (m *NoopMonitor) SetDependencyAvailability(tags map[string]string, value float64) error {
	return nil
}

func NewNoopMonitor() *NoopMonitor {
	return new(NoopMonitor)
}
