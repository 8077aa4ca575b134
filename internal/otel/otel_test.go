package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledReturnsNoopProvider(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Meter)
	assert.Nil(t, p.TracerProvider)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProvider_ShutdownWithNilHookIsSafe(t *testing.T) {
	p := &Provider{}
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestCreateExporter_UnknownExporterErrors(t *testing.T) {
	_, err := createExporter(context.Background(), Config{Exporter: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestCreateExporter_NoneYieldsNoopExporter(t *testing.T) {
	exp, err := createExporter(context.Background(), Config{Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, exp.ExportSpans(context.Background(), nil))
	assert.NoError(t, exp.Shutdown(context.Background()))
}

func TestCreateExporter_StdoutBuilds(t *testing.T) {
	exp, err := createExporter(context.Background(), Config{Exporter: "stdout"})
	require.NoError(t, err)
	assert.NotNil(t, exp)
}

func TestNewMetrics_CreatesEveryInstrument(t *testing.T) {
	p, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	m, err := NewMetrics(p.Meter)
	require.NoError(t, err)
	assert.NotNil(t, m.DispatchesReceived)
	assert.NotNil(t, m.DispatchDuration)
	assert.NotNil(t, m.ActionsExecuted)
	assert.NotNil(t, m.ActionErrors)
	assert.NotNil(t, m.ActionDuration)
	assert.NotNil(t, m.ProposalsEnqueued)
	assert.NotNil(t, m.ProposalDecisions)
	assert.NotNil(t, m.BackgroundRunsTotal)
	assert.NotNil(t, m.ActiveBackgroundRuns)
	assert.NotNil(t, m.SchedulerTicks)
	assert.NotNil(t, m.MessageLoopBatches)
}
