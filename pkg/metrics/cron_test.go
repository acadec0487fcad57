package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	m.Observe("hold-expiry", 250*time.Millisecond, nil)
	m.Observe("hold-expiry", time.Second, errors.New("db down"))
	m.Observe("", time.Millisecond, nil)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	runs := family(t, mfs, "taxcredit_cron_job_runs_total")
	require.Equal(t, 1.0, counterWith(runs, map[string]string{"job": "hold-expiry", "result": "success"}))
	require.Equal(t, 1.0, counterWith(runs, map[string]string{"job": "hold-expiry", "result": "failure"}))
	require.Equal(t, 1.0, counterWith(runs, map[string]string{"job": "unknown", "result": "success"}))

	duration := family(t, mfs, "taxcredit_cron_job_duration_seconds")
	for _, metric := range duration.GetMetric() {
		if labelsMatch(metric.GetLabel(), map[string]string{"job": "hold-expiry"}) {
			require.EqualValues(t, 2, metric.GetHistogram().GetSampleCount())
			require.InDelta(t, 1.25, metric.GetHistogram().GetSampleSum(), 1e-9)
		}
	}

	last := family(t, mfs, "taxcredit_cron_job_last_success_timestamp_seconds")
	require.Len(t, last.GetMetric(), 2)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	require.Nil(t, NewCronJobMetrics(nil))
	m.Observe("x", time.Second, nil)
}

func family(t *testing.T, mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func counterWith(mf *dto.MetricFamily, labels map[string]string) float64 {
	for _, metric := range mf.GetMetric() {
		if labelsMatch(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue()
		}
	}
	return -1
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok {
			if v != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}
