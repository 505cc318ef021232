package main

import (
	"fmt"
	"strconv"
)

// OriginalSize 原图变体的 Size 取值（真实宽度在测量时解析）
const OriginalSize = 0

// Generation 一次上传/测试批次的编号，单调递增
type Generation uint64

// Variant 待测试的图片变体
type Variant struct {
	Size   int    `json:"size"`   // 目标宽度，OriginalSize 表示原图
	Format string `json:"format"` // jpeg / webp / 原图扩展名
	URL    string `json:"url"`
}

// IsOriginal 是否为原图
func (v Variant) IsOriginal() bool {
	return v.Size == OriginalSize
}

// SizeLabel 用于显示的尺寸标签
func (v Variant) SizeLabel() string {
	if v.IsOriginal() {
		return "original"
	}
	return strconv.Itoa(v.Size)
}

// Key 变体唯一标识 (size, format)
func (v Variant) Key() string {
	return v.SizeLabel() + "/" + v.Format
}

// Resolution 解码后的像素尺寸
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// MeasurementRecord 单个变体的测量结果，生成后不再修改
type MeasurementRecord struct {
	Size          int        `json:"size"`             // 原图为解码后的像素宽度
	Format        string     `json:"format"`           // 图片格式
	URL           string     `json:"url"`              // 资源地址
	LoadTimeMs    float64    `json:"load_time_ms"`     // 请求开始到解码完成（ms）
	TTFBMs        float64    `json:"ttfb_ms"`          // 首字节时间（ms）
	Bytes         int64      `json:"bytes"`            // HEAD 返回的 Content-Length
	SizeKb        float64    `json:"size_kb"`          // Bytes / 1024
	LoadTimePerKb float64    `json:"load_time_per_kb"` // round(LoadTimeMs / SizeKb)
	Resolution    Resolution `json:"resolution"`
	PixelCount    int        `json:"pixel_count"`
	IsOriginal    bool       `json:"is_original"`
}

// Outcome 单个探测的结果：成功记录或失败，二者取其一
type Outcome struct {
	Record  *MeasurementRecord
	Failure *ProbeFailure
}

// FormatSummary 按格式汇总
type FormatSummary struct {
	Format        string  `json:"format"`
	Count         int     `json:"count"`
	AvgLoadTimeMs float64 `json:"avg_load_time_ms"`
	AvgSizeKb     float64 `json:"avg_size_kb"`
	MinLoadTimeMs float64 `json:"min_load_time_ms"`
	MaxLoadTimeMs float64 `json:"max_load_time_ms"`
	P50LoadTimeMs float64 `json:"p50_load_time_ms"`
	P90LoadTimeMs float64 `json:"p90_load_time_ms"`
	Score         float64 `json:"score"` // 可能为负数，不做截断
}

// FormatDelta 挑战格式相对基准格式的提升
type FormatDelta struct {
	Challenger       string  `json:"challenger"`
	Baseline         string  `json:"baseline"`
	SizeReductionPct float64 `json:"size_reduction_pct"`
	SpeedGainPct     float64 `json:"speed_gain_pct"`
}

// AggregateReport 汇总统计
type AggregateReport struct {
	Formats  []FormatSummary     `json:"formats"`
	Delta    FormatDelta         `json:"delta"`
	Original []MeasurementRecord `json:"original"` // 原图参考线
}

// Format 按格式名查找汇总
func (a *AggregateReport) Format(name string) (FormatSummary, bool) {
	for _, f := range a.Formats {
		if f.Format == name {
			return f, true
		}
	}
	return FormatSummary{}, false
}

// RecordRow 明细表中的一行
type RecordRow struct {
	MeasurementRecord
	Reference      bool     `json:"reference"`        // 基准格式的行
	GainVsBaseline *float64 `json:"gain_vs_baseline"` // nil 表示同尺寸下没有基准记录
}
