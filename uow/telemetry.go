/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package uow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tomoncle/anvil/uow"

// Metric names.
const (
	MetricTransactionsBegun      = "anvil.uow.transactions.begun"
	MetricTransactionsCommitted  = "anvil.uow.transactions.committed"
	MetricTransactionsRolledBack = "anvil.uow.transactions.rolled_back"
	MetricMutationsFlushed       = "anvil.uow.mutations.flushed"
	MetricCommitDuration         = "anvil.uow.commit.duration"
)

type telemetry struct {
	tracer         trace.Tracer
	begun          metric.Int64Counter
	committed      metric.Int64Counter
	rolledBack     metric.Int64Counter
	flushed        metric.Int64Counter
	commitDuration metric.Float64Histogram
}

func newTelemetry(mp metric.MeterProvider, tp trace.TracerProvider) (*telemetry, error) {
	meter := mp.Meter(instrumentationName)

	begun, err := meter.Int64Counter(
		MetricTransactionsBegun,
		metric.WithDescription("Number of transactions begun by units of work"),
	)
	if err != nil {
		return nil, err
	}

	committed, err := meter.Int64Counter(
		MetricTransactionsCommitted,
		metric.WithDescription("Number of transactions committed by units of work"),
	)
	if err != nil {
		return nil, err
	}

	rolledBack, err := meter.Int64Counter(
		MetricTransactionsRolledBack,
		metric.WithDescription("Number of transactions rolled back, by reason"),
	)
	if err != nil {
		return nil, err
	}

	flushed, err := meter.Int64Counter(
		MetricMutationsFlushed,
		metric.WithDescription("Number of rows affected by flushed mutations"),
	)
	if err != nil {
		return nil, err
	}

	commitDuration, err := meter.Float64Histogram(
		MetricCommitDuration,
		metric.WithDescription("Time spent flushing and committing a transaction"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &telemetry{
		tracer:         tp.Tracer(instrumentationName),
		begun:          begun,
		committed:      committed,
		rolledBack:     rolledBack,
		flushed:        flushed,
		commitDuration: commitDuration,
	}, nil
}

func (t *telemetry) start(ctx context.Context, name, scope string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("uow.id", scope)))
}

func (t *telemetry) recordBegin(ctx context.Context) {
	t.begun.Add(ctx, 1)
}

func (t *telemetry) recordCommit(ctx context.Context, started time.Time, success bool) {
	t.commitDuration.Record(ctx, time.Since(started).Seconds(),
		metric.WithAttributes(attribute.Bool("success", success)))
	if success {
		t.committed.Add(ctx, 1)
	}
}

func (t *telemetry) recordRollback(ctx context.Context, reason string) {
	t.rolledBack.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (t *telemetry) recordFlush(ctx context.Context, rows int64) {
	if rows > 0 {
		t.flushed.Add(ctx, rows)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
