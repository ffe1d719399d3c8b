package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAnalysisIncrementsCounterAndHistogram(t *testing.T) {
	m := New()
	m.ObserveAnalysis(10 * time.Millisecond)
	m.ObserveAnalysis(20 * time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.AnalysesTotal))
}

func TestObserveCommandLabelsByNameAndOutcome(t *testing.T) {
	m := New()
	m.ObserveCommand("hl7.setTimestampToNow", "ok")
	m.ObserveCommand("hl7.setTimestampToNow", "ok")
	m.ObserveCommand("hl7.sendMessage", "timeout")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CommandsTotal.WithLabelValues("hl7.setTimestampToNow", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CommandsTotal.WithLabelValues("hl7.sendMessage", "timeout")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.CommandsTotal.WithLabelValues("hl7.sendMessage", "ok")))
}

func TestObserveSendMessageLabelsByOutcome(t *testing.T) {
	m := New()
	m.ObserveSendMessage("connect_error")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SendMessageOutcomes.WithLabelValues("connect_error")))
}

func TestNewReturnsIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.DocumentsOpen.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.DocumentsOpen))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.DocumentsOpen))
}
