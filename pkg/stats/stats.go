// Package stats tracks process-wide counters for chest activity: sessions
// created and sealed, and the bytes moved through the upload and download
// paths, kept as lock-free atomic counters.
package stats

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

type Collector struct {
	sessionsCreated atomic.Int64
	sessionsSealed  atomic.Int64
	sessionsExpired atomic.Int64
	sessionsAbandon atomic.Int64
	downloads       transferCounter
	uploads         transferCounter
}

type transferCounter struct {
	count    atomic.Int64
	bytes    atomic.Int64
	duration atomic.Int64
}

type Snapshot struct {
	SessionsCreated  int64
	SessionsSealed   int64
	SessionsExpired  int64
	SessionsAbandon  int64
	Downloads        TransferSnapshot
	Uploads          TransferSnapshot
}

type Summary struct {
	SessionsCreated int64           `json:"sessions_created"`
	SessionsSealed  int64           `json:"sessions_sealed"`
	SessionsExpired int64           `json:"sessions_expired"`
	SessionsAbandon int64           `json:"sessions_abandoned"`
	Downloads       TransferSummary `json:"downloads"`
	Uploads         TransferSummary `json:"uploads"`
}

type TransferSnapshot struct {
	Count    int64
	Bytes    int64
	Duration time.Duration
}

type TransferSummary struct {
	Count         int64   `json:"count"`
	Bytes         int64   `json:"bytes"`
	DurationMs    int64   `json:"duration_ms"`
	AvgBytes      int64   `json:"avg_bytes"`
	AvgDurationMs int64   `json:"avg_duration_ms"`
	BytesPerSec   float64 `json:"bytes_per_sec"`
}

var defaultCollector Collector

func Default() *Collector {
	return &defaultCollector
}

func (c *Collector) RecordSessionCreated() {
	c.sessionsCreated.Add(1)
}

func (c *Collector) RecordSessionSealed() {
	c.sessionsSealed.Add(1)
}

func (c *Collector) RecordReap(expired, abandoned int) {
	c.sessionsExpired.Add(int64(expired))
	c.sessionsAbandon.Add(int64(abandoned))
}

func (c *Collector) RecordDownload(bytes int64, duration time.Duration) {
	c.downloads.record(bytes, duration)
}

func (c *Collector) RecordUpload(bytes int64, duration time.Duration) {
	c.uploads.record(bytes, duration)
}

func (c *Collector) Reset() {
	c.sessionsCreated.Store(0)
	c.sessionsSealed.Store(0)
	c.sessionsExpired.Store(0)
	c.sessionsAbandon.Store(0)
	c.downloads.reset()
	c.uploads.reset()
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		SessionsCreated: c.sessionsCreated.Load(),
		SessionsSealed:  c.sessionsSealed.Load(),
		SessionsExpired: c.sessionsExpired.Load(),
		SessionsAbandon: c.sessionsAbandon.Load(),
		Downloads:       c.downloads.snapshot(),
		Uploads:         c.uploads.snapshot(),
	}
}

func (c *Collector) Summary() Summary {
	snapshot := c.Snapshot()
	return Summary{
		SessionsCreated: snapshot.SessionsCreated,
		SessionsSealed:  snapshot.SessionsSealed,
		SessionsExpired: snapshot.SessionsExpired,
		SessionsAbandon: snapshot.SessionsAbandon,
		Downloads:       summarizeTransfer(snapshot.Downloads),
		Uploads:         summarizeTransfer(snapshot.Uploads),
	}
}

func (c *Collector) LogSummary() {
	snapshot := c.Snapshot()

	slog.Info(
		"chest stats",
		"sessionsCreated", snapshot.SessionsCreated,
		"sessionsSealed", snapshot.SessionsSealed,
		"sessionsExpired", snapshot.SessionsExpired,
		"sessionsAbandoned", snapshot.SessionsAbandon,
		"downloads", formatTransferSummary(snapshot.Downloads),
		"uploads", formatTransferSummary(snapshot.Uploads),
	)
}

func (c *Collector) SummaryText() string {
	snapshot := c.Snapshot()

	var builder strings.Builder
	builder.WriteString("chest stats\n")
	fmt.Fprintf(&builder, "sessions created: %d\n", snapshot.SessionsCreated)
	fmt.Fprintf(&builder, "sessions sealed: %d\n", snapshot.SessionsSealed)
	fmt.Fprintf(&builder, "sessions expired: %d\n", snapshot.SessionsExpired)
	fmt.Fprintf(&builder, "sessions abandoned: %d\n", snapshot.SessionsAbandon)
	fmt.Fprintf(&builder, "downloads: %s\n", formatTransferSummary(snapshot.Downloads))
	fmt.Fprintf(&builder, "uploads: %s\n", formatTransferSummary(snapshot.Uploads))
	return builder.String()
}

func (c *transferCounter) record(bytes int64, duration time.Duration) {
	if bytes < 0 {
		bytes = 0
	}
	if duration < 0 {
		duration = 0
	}
	c.count.Add(1)
	c.bytes.Add(bytes)
	c.duration.Add(duration.Nanoseconds())
}

func (c *transferCounter) snapshot() TransferSnapshot {
	return TransferSnapshot{
		Count:    c.count.Load(),
		Bytes:    c.bytes.Load(),
		Duration: time.Duration(c.duration.Load()),
	}
}

func (c *transferCounter) reset() {
	c.count.Store(0)
	c.bytes.Store(0)
	c.duration.Store(0)
}

func summarizeTransfer(snapshot TransferSnapshot) TransferSummary {
	if snapshot.Count == 0 {
		return TransferSummary{}
	}

	avgBytes := snapshot.Bytes / snapshot.Count
	avgDuration := time.Duration(snapshot.Duration.Nanoseconds() / snapshot.Count)

	return TransferSummary{
		Count:         snapshot.Count,
		Bytes:         snapshot.Bytes,
		DurationMs:    snapshot.Duration.Milliseconds(),
		AvgBytes:      avgBytes,
		AvgDurationMs: avgDuration.Milliseconds(),
		BytesPerSec:   rateBytes(snapshot.Bytes, snapshot.Duration),
	}
}

func formatTransferSummary(snapshot TransferSnapshot) string {
	if snapshot.Count == 0 {
		return "none"
	}

	avgBytes := snapshot.Bytes / snapshot.Count
	avgDuration := time.Duration(snapshot.Duration.Nanoseconds() / snapshot.Count)

	return fmt.Sprintf(
		"count=%d total=%s avg=%s avgTime=%s avgSpeed=%s",
		snapshot.Count,
		humanize.IBytes(uint64(snapshot.Bytes)),
		humanize.IBytes(uint64(avgBytes)),
		formatDuration(avgDuration),
		formatRate(snapshot.Bytes, snapshot.Duration),
	)
}

func formatRate(totalBytes int64, duration time.Duration) string {
	if totalBytes <= 0 || duration <= 0 {
		return "0 B/s"
	}
	return fmt.Sprintf("%s/s", humanize.Bytes(uint64(rateBytes(totalBytes, duration))))
}

func formatDuration(duration time.Duration) string {
	if duration <= 0 {
		return "0s"
	}
	return duration.Round(time.Millisecond).String()
}

func rateBytes(totalBytes int64, duration time.Duration) float64 {
	if totalBytes <= 0 || duration <= 0 {
		return 0
	}
	return float64(totalBytes) / duration.Seconds()
}
