package main

import (
	"fmt"
	"sort"

	"github.com/aclements/go-moremath/stats"
)

// ===============================
// 统计计算
// ===============================

// ScoreWeights 综合评分的除数，经验值，可在配置中调整
type ScoreWeights struct {
	LatencyDivisor float64 `yaml:"latency_divisor"`
	SizeDivisor    float64 `yaml:"size_divisor"`
}

// DefaultScoreWeights score = 100 - (avgLoadTimeMs/20 + avgSizeKb/10)
var DefaultScoreWeights = ScoreWeights{LatencyDivisor: 20, SizeDivisor: 10}

// Score 计算综合评分，不做截断
func (w ScoreWeights) Score(avgLoadTimeMs, avgSizeKb float64) float64 {
	return 100 - (avgLoadTimeMs/w.LatencyDivisor + avgSizeKb/w.SizeDivisor)
}

// Aggregator 对比基准格式和挑战格式
type Aggregator struct {
	Baseline   string
	Challenger string
	Weights    ScoreWeights
}

// NewAggregator 创建默认的 webp 对比 jpeg 汇总器
func NewAggregator() Aggregator {
	return Aggregator{
		Baseline:   "jpeg",
		Challenger: "webp",
		Weights:    DefaultScoreWeights,
	}
}

// partition 按格式分组，原图计入其自身格式
func partition(records []MeasurementRecord) map[string][]MeasurementRecord {
	groups := make(map[string][]MeasurementRecord)
	for _, r := range records {
		groups[r.Format] = append(groups[r.Format], r)
	}
	return groups
}

func totals(records []MeasurementRecord) (loadTimeMs, sizeKb float64) {
	for _, r := range records {
		loadTimeMs += r.LoadTimeMs
		sizeKb += r.SizeKb
	}
	return loadTimeMs, sizeKb
}

// summarize 计算单个格式的汇总
func (a Aggregator) summarize(format string, records []MeasurementRecord) FormatSummary {
	loadTimes := make([]float64, len(records))
	sizes := make([]float64, len(records))
	for i, r := range records {
		loadTimes[i] = r.LoadTimeMs
		sizes[i] = r.SizeKb
	}

	sample := stats.Sample{Xs: loadTimes}
	minLoad, maxLoad := stats.Bounds(loadTimes)
	avgLoad := stats.Mean(loadTimes)
	avgSize := stats.Mean(sizes)

	return FormatSummary{
		Format:        format,
		Count:         len(records),
		AvgLoadTimeMs: avgLoad,
		AvgSizeKb:     avgSize,
		MinLoadTimeMs: minLoad,
		MaxLoadTimeMs: maxLoad,
		P50LoadTimeMs: sample.Quantile(0.50),
		P90LoadTimeMs: sample.Quantile(0.90),
		Score:         a.Weights.Score(avgLoad, avgSize),
	}
}

// Aggregate 计算各格式汇总和挑战格式相对基准格式的提升
func (a Aggregator) Aggregate(records []MeasurementRecord) (*AggregateReport, error) {
	groups := partition(records)
	baseline, challenger := groups[a.Baseline], groups[a.Challenger]
	if len(baseline) == 0 {
		return nil, fmt.Errorf("%w: no %s records", ErrInsufficientData, a.Baseline)
	}
	if len(challenger) == 0 {
		return nil, fmt.Errorf("%w: no %s records", ErrInsufficientData, a.Challenger)
	}

	baseLoad, baseSize := totals(baseline)
	if baseLoad <= 0 || baseSize <= 0 {
		return nil, fmt.Errorf("%w: %s totals are zero", ErrInsufficientData, a.Baseline)
	}
	chalLoad, chalSize := totals(challenger)

	formats := make([]string, 0, len(groups))
	for f := range groups {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	report := &AggregateReport{
		Formats: make([]FormatSummary, 0, len(formats)),
		Delta: FormatDelta{
			Challenger:       a.Challenger,
			Baseline:         a.Baseline,
			SizeReductionPct: (baseSize - chalSize) / baseSize * 100,
			SpeedGainPct:     (baseLoad - chalLoad) / baseLoad * 100,
		},
	}
	for _, f := range formats {
		report.Formats = append(report.Formats, a.summarize(f, groups[f]))
	}
	for _, r := range records {
		if r.IsOriginal {
			report.Original = append(report.Original, r)
		}
	}

	return report, nil
}

// CrossReference 为每条记录查找同尺寸的基准格式记录并计算加载提升
// 汇总失败时明细表依然可用
func (a Aggregator) CrossReference(records []MeasurementRecord) []RecordRow {
	refs := make(map[int]MeasurementRecord)
	for _, r := range records {
		if r.Format != a.Baseline {
			continue
		}
		if prev, ok := refs[r.Size]; ok && !prev.IsOriginal {
			continue
		}
		refs[r.Size] = r
	}

	rows := make([]RecordRow, len(records))
	for i, r := range records {
		rows[i] = RecordRow{MeasurementRecord: r}
		if r.Format == a.Baseline {
			rows[i].Reference = true
			continue
		}
		ref, ok := refs[r.Size]
		if !ok || ref.LoadTimeMs <= 0 {
			continue
		}
		gain := (ref.LoadTimeMs - r.LoadTimeMs) / ref.LoadTimeMs * 100
		rows[i].GainVsBaseline = &gain
	}
	return rows
}
