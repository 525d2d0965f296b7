package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/gnc_reports/internal/model"
)

func TestObserveItem(t *testing.T) {
	m := New("gnc_reports")

	m.ObserveItem(model.ItemResult{Status: model.StatusSucceeded, Duration: 3 * time.Second})
	m.ObserveItem(model.ItemResult{Status: model.StatusSucceeded, Duration: 4 * time.Second})
	m.ObserveItem(model.ItemResult{Status: model.StatusFailed, Err: errors.New("x"), Duration: time.Minute})
	m.ObserveRecovery()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recoveries))
}

func TestObserveRun(t *testing.T) {
	m := New("gnc_reports")
	started := time.Unix(1_780_000_000, 0)

	m.ObserveRun(&model.BatchReport{
		StartedAt:  started,
		FinishedAt: started.Add(95 * time.Second),
		Artifacts:  []string{"a.xls", "b.xls", "c.xls"},
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Artifacts))
	assert.Equal(t, 95.0, testutil.ToFloat64(m.RunDuration))
	assert.Equal(t, float64(started.Add(95*time.Second).Unix()), testutil.ToFloat64(m.LastRunTimestamp))
}

func TestWriteTextfile(t *testing.T) {
	m := New("gnc_reports")
	m.ObserveItem(model.ItemResult{Status: model.StatusSucceeded, Duration: time.Second})

	path := filepath.Join(t.TempDir(), "textfile", "gnc_reports.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `gnc_reports_items_total{status="succeeded"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveItem(model.ItemResult{Status: model.StatusFailed})
	m.ObserveRecovery()
	m.ObserveRun(&model.BatchReport{})
	assert.NoError(t, m.WriteTextfile("/nonexistent/x.prom"))
}
