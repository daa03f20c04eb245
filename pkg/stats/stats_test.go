package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollectorReset(t *testing.T) {
	collector := &Collector{}
	collector.RecordSessionCreated()
	collector.RecordSessionSealed()
	collector.RecordReap(2, 1)
	collector.RecordDownload(128, 2*time.Second)
	collector.RecordUpload(64, 500*time.Millisecond)

	collector.Reset()

	snapshot := collector.Snapshot()
	require.Equal(t, int64(0), snapshot.SessionsCreated)
	require.Equal(t, int64(0), snapshot.SessionsSealed)
	require.Equal(t, int64(0), snapshot.SessionsExpired)
	require.Equal(t, int64(0), snapshot.SessionsAbandon)
	require.Equal(t, int64(0), snapshot.Downloads.Count)
	require.Equal(t, int64(0), snapshot.Downloads.Bytes)
	require.Equal(t, time.Duration(0), snapshot.Downloads.Duration)
	require.Equal(t, int64(0), snapshot.Uploads.Count)
	require.Equal(t, int64(0), snapshot.Uploads.Bytes)
	require.Equal(t, time.Duration(0), snapshot.Uploads.Duration)
}

func TestCollectorRecordsCounts(t *testing.T) {
	collector := &Collector{}
	collector.RecordSessionCreated()
	collector.RecordSessionCreated()
	collector.RecordSessionSealed()
	collector.RecordReap(3, 1)

	snapshot := collector.Snapshot()
	require.Equal(t, int64(2), snapshot.SessionsCreated)
	require.Equal(t, int64(1), snapshot.SessionsSealed)
	require.Equal(t, int64(3), snapshot.SessionsExpired)
	require.Equal(t, int64(1), snapshot.SessionsAbandon)
}

func TestCollectorRecordsTransfers(t *testing.T) {
	collector := &Collector{}
	collector.RecordUpload(1024, time.Second)
	collector.RecordUpload(3072, time.Second)
	collector.RecordDownload(2048, 2*time.Second)

	snapshot := collector.Snapshot()
	require.Equal(t, int64(2), snapshot.Uploads.Count)
	require.Equal(t, int64(4096), snapshot.Uploads.Bytes)
	require.Equal(t, 2*time.Second, snapshot.Uploads.Duration)
	require.Equal(t, int64(1), snapshot.Downloads.Count)
	require.Equal(t, int64(2048), snapshot.Downloads.Bytes)
}

func TestSummaryAveragesTransfers(t *testing.T) {
	collector := &Collector{}
	collector.RecordUpload(1000, time.Second)
	collector.RecordUpload(3000, 3*time.Second)

	summary := collector.Summary()
	require.Equal(t, int64(2), summary.Uploads.Count)
	require.Equal(t, int64(4000), summary.Uploads.Bytes)
	require.Equal(t, int64(2000), summary.Uploads.AvgBytes)
	require.InDelta(t, 1000, summary.Uploads.BytesPerSec, 0.01)
}

func TestSummaryTextIncludesCounters(t *testing.T) {
	collector := &Collector{}
	collector.RecordSessionCreated()
	collector.RecordUpload(1024, time.Second)

	text := collector.SummaryText()
	require.Contains(t, text, "sessions created: 1")
	require.Contains(t, text, "uploads:")
}

func TestFormatTransferSummaryEmpty(t *testing.T) {
	require.Equal(t, "none", formatTransferSummary(TransferSnapshot{}))
}

func TestRateBytes(t *testing.T) {
	require.Equal(t, float64(0), rateBytes(0, time.Second))
	require.Equal(t, float64(0), rateBytes(100, 0))
	require.InDelta(t, 100, rateBytes(100, time.Second), 0.01)
}
