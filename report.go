package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// ===============================
// 报告模型
// ===============================

// Report 一个批次的不可变快照，交给展示层使用，构造后只读
type Report struct {
	RunID        string              `json:"run_id"`
	Generation   Generation          `json:"generation"`
	Filename     string              `json:"filename"`
	BaseURL      string              `json:"base_url"`
	StartedAt    time.Time           `json:"started_at"`
	CompletedAt  time.Time           `json:"completed_at"`
	Duration     time.Duration       `json:"-"`
	DurationMs   float64             `json:"duration_ms"` // 与其它耗时字段一致使用毫秒
	Expected     int                 `json:"expected"` // 目录中的变体数
	Records      []MeasurementRecord `json:"records"`
	Rows         []RecordRow         `json:"rows"`
	Failures     []ProbeFailure      `json:"failures"`
	Summary      *AggregateReport    `json:"summary"`       // 汇总失败时为 nil
	SummaryError string              `json:"summary_error"` // 汇总失败原因
}

// ReportInput 构造报告所需的数据
type ReportInput struct {
	Generation  Generation
	Filename    string
	BaseURL     string
	StartedAt   time.Time
	CompletedAt time.Time
	Expected    int
	Records     []MeasurementRecord
	Failures    []ProbeFailure
}

// recordLess 原图在前，然后按尺寸、格式排序
func recordLess(a, b MeasurementRecord) bool {
	if a.IsOriginal != b.IsOriginal {
		return a.IsOriginal
	}
	if a.Size != b.Size {
		return a.Size < b.Size
	}
	return a.Format < b.Format
}

// NewReport 汇总并生成报告快照，所有切片都会被复制
func NewReport(in ReportInput, agg Aggregator) *Report {
	records := append([]MeasurementRecord(nil), in.Records...)
	sort.SliceStable(records, func(i, j int) bool { return recordLess(records[i], records[j]) })

	failures := append([]ProbeFailure(nil), in.Failures...)
	sort.SliceStable(failures, func(i, j int) bool {
		a, b := failures[i].Variant, failures[j].Variant
		if a.Size != b.Size {
			return a.Size < b.Size
		}
		return a.Format < b.Format
	})

	duration := in.CompletedAt.Sub(in.StartedAt)
	r := &Report{
		RunID:       uuid.New().String(),
		Generation:  in.Generation,
		Filename:    in.Filename,
		BaseURL:     in.BaseURL,
		StartedAt:   in.StartedAt,
		CompletedAt: in.CompletedAt,
		Duration:    duration,
		DurationMs:  float64(duration.Microseconds()) / 1000.0,
		Expected:    in.Expected,
		Records:     records,
		Rows:        agg.CrossReference(records),
		Failures:    failures,
	}

	summary, err := agg.Aggregate(records)
	if err != nil {
		r.SummaryError = err.Error()
	} else {
		r.Summary = summary
	}
	return r
}

// ===============================
// 控制台输出
// ===============================

func formatGain(row RecordRow) string {
	switch {
	case row.Reference:
		return "基准"
	case row.GainVsBaseline == nil:
		return "-"
	default:
		return fmt.Sprintf("%.1f%%", *row.GainVsBaseline)
	}
}

// printRecordTable 打印明细表格
func printRecordTable(w io.Writer, report *Report) {
	fmt.Fprintf(w, "\n📊 %s 明细结果 (批次 #%d, 成功 %d/%d):\n",
		report.Filename, report.Generation, len(report.Records), report.Expected)

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"格式", "尺寸", "分辨率", "大小(KB)", "加载(ms)", "TTFB(ms)", "效率(ms/KB)", "对比基准"}),
	)

	for _, row := range report.Rows {
		size := fmt.Sprintf("%dpx", row.Size)
		if row.IsOriginal {
			size += " (原图)"
		}
		table.Append([]string{
			row.Format,
			size,
			row.Resolution.String(),
			fmt.Sprintf("%.1f", row.SizeKb),
			fmt.Sprintf("%.0f", row.LoadTimeMs),
			fmt.Sprintf("%.0f", row.TTFBMs),
			fmt.Sprintf("%.1f", row.LoadTimePerKb),
			formatGain(row),
		})
	}

	table.Render()

	if len(report.Failures) > 0 {
		fmt.Fprintln(w, "\n❌ 失败的变体:")
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  - %s [%s] %s\n", f.Variant.Key(), f.Reason, f.Message)
		}
	}
}

// printSummaryTable 打印格式汇总表格
func printSummaryTable(w io.Writer, report *Report) {
	if report.Summary == nil {
		fmt.Fprintf(w, "\n⚠️  无法生成汇总: %s\n", report.SummaryError)
		return
	}

	fmt.Fprintln(w, "\n📈 格式汇总:")

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"格式", "样本数", "平均加载(ms)", "P50(ms)", "P90(ms)", "最小(ms)", "最大(ms)", "平均大小(KB)", "评分"}),
	)
	for _, s := range report.Summary.Formats {
		table.Append([]string{
			s.Format,
			fmt.Sprintf("%d", s.Count),
			fmt.Sprintf("%.0f", s.AvgLoadTimeMs),
			fmt.Sprintf("%.0f", s.P50LoadTimeMs),
			fmt.Sprintf("%.0f", s.P90LoadTimeMs),
			fmt.Sprintf("%.0f", s.MinLoadTimeMs),
			fmt.Sprintf("%.0f", s.MaxLoadTimeMs),
			fmt.Sprintf("%.1f", s.AvgSizeKb),
			fmt.Sprintf("%.0f", s.Score),
		})
	}
	table.Render()

	d := report.Summary.Delta
	fmt.Fprintf(w, "\n💡 %s 相比 %s: 体积减少 %.0f%%, 加载快 %.0f%%\n",
		d.Challenger, d.Baseline, d.SizeReductionPct, d.SpeedGainPct)
	fmt.Fprintln(w, "   - 评分: 100 减去加载时间和体积的加权值，可能为负")
	fmt.Fprintln(w, "   - 对比基准: 同尺寸下相对基准格式的加载时间提升")
}
