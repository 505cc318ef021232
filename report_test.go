package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() ReportInput {
	original := rec(1024, "png", 700, 900)
	original.IsOriginal = true
	original.Resolution = Resolution{Width: 1024, Height: 768}
	start := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

	return ReportInput{
		Generation:  3,
		Filename:    "photo.png",
		BaseURL:     "http://localhost:3000",
		StartedAt:   start,
		CompletedAt: start.Add(1500 * time.Millisecond),
		Expected:    7,
		Records: []MeasurementRecord{
			rec(400, "webp", 150, 30),
			rec(200, "jpeg", 200, 40),
			original,
			rec(200, "webp", 120, 20),
			rec(400, "jpeg", 260, 60),
		},
		Failures: []ProbeFailure{
			*newProbeFailure(Variant{Size: 800, Format: "webp"}, ReasonTimeout, nil),
			*newProbeFailure(Variant{Size: 800, Format: "jpeg"}, ReasonMissingSizeHeader, nil),
		},
	}
}

func TestNewReportOrdersAndSummarizes(t *testing.T) {
	report := NewReport(sampleInput(), NewAggregator())

	var keys []string
	for _, r := range report.Records {
		keys = append(keys, Variant{Size: r.Size, Format: r.Format}.Key())
	}
	assert.Equal(t, []string{"1024/png", "200/jpeg", "200/webp", "400/jpeg", "400/webp"}, keys)
	assert.True(t, report.Records[0].IsOriginal)

	assert.Equal(t, "800/jpeg", report.Failures[0].Variant.Key())
	assert.Equal(t, 1500*time.Millisecond, report.Duration)
	assert.InDelta(t, 1500, report.DurationMs, 1e-9)

	require.NotNil(t, report.Summary)
	assert.Empty(t, report.SummaryError)
	require.Len(t, report.Rows, len(report.Records))
}

func TestNewReportCopiesInput(t *testing.T) {
	in := sampleInput()
	report := NewReport(in, NewAggregator())

	in.Records[0].LoadTimeMs = 99999
	in.Failures[0].Reason = ReasonResourceError

	for _, r := range report.Records {
		assert.NotEqual(t, 99999.0, r.LoadTimeMs)
	}
	for _, f := range report.Failures {
		assert.NotEqual(t, ReasonResourceError, f.Reason)
	}
}

func TestNewReportWithoutSummary(t *testing.T) {
	in := sampleInput()
	in.Records = in.Records[:0]
	in.Records = append(in.Records, rec(200, "jpeg", 100, 10))

	report := NewReport(in, NewAggregator())
	assert.Nil(t, report.Summary)
	assert.Contains(t, report.SummaryError, "insufficient data")
	assert.Len(t, report.Rows, 1)
}

func TestPrintTables(t *testing.T) {
	report := NewReport(sampleInput(), NewAggregator())

	var buf bytes.Buffer
	printRecordTable(&buf, report)
	printSummaryTable(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "photo.png")
	assert.Contains(t, out, "基准")
	assert.Contains(t, out, "1024x768")
	assert.Contains(t, out, "800/webp")
	assert.Contains(t, out, string(ReasonTimeout))
	assert.Contains(t, out, "webp 相比 jpeg")
}

func TestPrintSummaryTableWithoutSummary(t *testing.T) {
	report := NewReport(ReportInput{Generation: 1, Filename: "a.png", Expected: 7}, NewAggregator())

	var buf bytes.Buffer
	printSummaryTable(&buf, report)
	assert.Contains(t, buf.String(), "无法生成汇总")
}
