// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package events

import (
	"context"

	"github.com/meridianhq/tenancy-service/internal/logging"
)

// LogEnqueuer records jobs in the log instead of queueing them. Used
// when no queue backend is configured; lifecycle work then has to
// happen synchronously.
type LogEnqueuer struct {
	logger logging.LoggerInterface
}

func NewLogEnqueuer(logger logging.LoggerInterface) *LogEnqueuer {
	return &LogEnqueuer{logger: logger}
}

func (l *LogEnqueuer) Enqueue(ctx context.Context, job *Job) error {
	l.logger.Infof("no queue configured, dropping job %q for tenant %s (event %s)", job.Name, job.TenantID, job.EventID)
	return nil
}
