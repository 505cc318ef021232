package main

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ===============================
// 报告导出模块
// ===============================

// 加载时间的临界线（ms）
const criticalLoadTimeMs = 1000

// reportPath 生成报告文件路径: <dir>/reports/<时间>_g<批次>.<ext>
func reportPath(report *Report, outputDir, ext string) (string, error) {
	reportDir := filepath.Join(outputDir, "reports")
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}
	timestamp := report.StartedAt.Format("2006-01-02_15-04-05")
	return filepath.Join(reportDir, fmt.Sprintf("%s_g%d.%s", timestamp, report.Generation, ext)), nil
}

// ExportJSON 导出 JSON 格式报告
func ExportJSON(report *Report, outputDir string) (string, error) {
	filePath, err := reportPath(report, outputDir, "json")
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("JSON 序列化失败: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("写入 JSON 文件失败: %w", err)
	}

	return filePath, nil
}

// ExportHTML 导出 HTML 格式报告
func ExportHTML(report *Report, outputDir string) (string, error) {
	filePath, err := reportPath(report, outputDir, "html")
	if err != nil {
		return "", err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("创建 HTML 文件失败: %w", err)
	}
	defer file.Close()

	if err := RenderHTML(file, report); err != nil {
		return "", err
	}
	return filePath, nil
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatDuration": func(d time.Duration) string {
		return d.Round(time.Millisecond).String()
	},
	"formatTime": func(t time.Time) string {
		return t.Format("2006-01-02 15:04:05")
	},
	"upper": strings.ToUpper,
	"gain":  formatGain,
	// 根据加载时间返回性能颜色类
	"perfClass": func(ms float64) string {
		if ms < 200 {
			return "perf-excellent"
		} else if ms < 500 {
			return "perf-good"
		} else if ms < criticalLoadTimeMs {
			return "perf-fair"
		}
		return "perf-poor"
	},
}).Parse(htmlTemplate))

// RenderHTML 渲染 HTML 报告
func RenderHTML(w io.Writer, report *Report) error {
	if err := reportTemplate.Execute(w, report); err != nil {
		return fmt.Errorf("渲染 HTML 模板失败: %w", err)
	}
	return nil
}

// pngChart go-chart 中各类图表共同的渲染接口
type pngChart interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

func renderPNG(ch pngChart, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("创建图表文件失败: %w", err)
	}
	defer file.Close()

	if err := ch.Render(chart.PNG, file); err != nil {
		return fmt.Errorf("渲染图表失败: %w", err)
	}
	return nil
}

// ExportCharts 导出加载时间折线图、各变体加载时间柱状图和各格式体积占比饼图
// 派生变体少于两种格式时不导出饼图
func ExportCharts(report *Report, outputDir string) ([]string, error) {
	if len(report.Records) == 0 {
		return nil, fmt.Errorf("没有可绘制的数据")
	}

	charts := []struct {
		ext string
		ch  pngChart
	}{
		{"png", buildLoadTimeChart(report)},
		{"bars.png", buildLoadTimeBarChart(report)},
	}
	if pie, ok := buildSizeShareChart(report); ok {
		charts = append(charts, struct {
			ext string
			ch  pngChart
		}{"share.png", pie})
	}

	var paths []string
	for _, c := range charts {
		filePath, err := reportPath(report, outputDir, c.ext)
		if err != nil {
			return paths, err
		}
		if err := renderPNG(c.ch, filePath); err != nil {
			return paths, err
		}
		paths = append(paths, filePath)
	}
	return paths, nil
}

var seriesColors = []drawing.Color{
	drawing.ColorFromHex("8884d8"),
	drawing.ColorFromHex("82ca9d"),
	drawing.ColorFromHex("ffc658"),
	drawing.ColorFromHex("8dd1e1"),
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 2,
		DotColor:    col,
		DotWidth:    4,
	}
}

// buildLoadTimeChart 原图、每种格式（不含原图）各一条线，外加 1s 临界线
func buildLoadTimeChart(report *Report) chart.Chart {
	byFormat := make(map[string][]MeasurementRecord)
	var originals []MeasurementRecord
	minX, maxX := 0.0, 0.0
	for i, r := range report.Records {
		x := float64(r.Size)
		if i == 0 || x < minX {
			minX = x
		}
		if i == 0 || x > maxX {
			maxX = x
		}
		if r.IsOriginal {
			originals = append(originals, r)
			continue
		}
		byFormat[r.Format] = append(byFormat[r.Format], r)
	}
	if minX == maxX {
		minX, maxX = minX-100, maxX+100
	}

	toSeries := func(name string, records []MeasurementRecord, style chart.Style) chart.ContinuousSeries {
		sort.Slice(records, func(i, j int) bool { return records[i].Size < records[j].Size })
		xs := make([]float64, len(records))
		ys := make([]float64, len(records))
		for i, r := range records {
			xs[i] = float64(r.Size)
			ys[i] = r.LoadTimeMs
		}
		return chart.ContinuousSeries{Name: name, XValues: xs, YValues: ys, Style: style}
	}

	var series []chart.Series
	if len(originals) > 0 {
		series = append(series, toSeries("Original", originals, lineStyle(drawing.ColorFromHex("ff7300"))))
	}

	formats := make([]string, 0, len(byFormat))
	for f := range byFormat {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	for i, f := range formats {
		series = append(series, toSeries(strings.ToUpper(f), byFormat[f], lineStyle(seriesColors[i%len(seriesColors)])))
	}

	series = append(series, chart.ContinuousSeries{
		Name:    "1s",
		XValues: []float64{minX, maxX},
		YValues: []float64{criticalLoadTimeMs, criticalLoadTimeMs},
		Style: chart.Style{
			StrokeColor:     drawing.ColorRed,
			StrokeWidth:     1,
			StrokeDashArray: []float64{5, 5},
		},
	})

	ch := chart.Chart{
		Title:      fmt.Sprintf("%s #%d", report.Filename, report.Generation),
		Width:      1024,
		Height:     480,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "Size (px)"},
		YAxis:      chart.YAxis{Name: "Load time (ms)"},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	return ch
}

// formatColor 原图固定橙色，其它格式按名称排序取色
func formatColor(formats []string, format string) drawing.Color {
	i := sort.SearchStrings(formats, format)
	return seriesColors[i%len(seriesColors)]
}

// derivedFormats 派生变体中出现的格式，按名称排序
func derivedFormats(records []MeasurementRecord) []string {
	seen := make(map[string]bool)
	var formats []string
	for _, r := range records {
		if r.IsOriginal || seen[r.Format] {
			continue
		}
		seen[r.Format] = true
		formats = append(formats, r.Format)
	}
	sort.Strings(formats)
	return formats
}

// buildSizeShareChart 各格式派生变体的总体积占比，少于两种格式时不生成
func buildSizeShareChart(report *Report) (chart.PieChart, bool) {
	formats := derivedFormats(report.Records)
	totals := make(map[string]float64, len(formats))
	var sum float64
	for _, r := range report.Records {
		if r.IsOriginal {
			continue
		}
		totals[r.Format] += r.SizeKb
		sum += r.SizeKb
	}
	// 单一格式的占比没有意义
	if sum <= 0 || len(formats) < 2 {
		return chart.PieChart{}, false
	}

	values := make([]chart.Value, 0, len(formats))
	for _, f := range formats {
		values = append(values, chart.Value{
			Value: totals[f],
			Label: fmt.Sprintf("%s %.0f%%", strings.ToUpper(f), totals[f]/sum*100),
			Style: chart.Style{FillColor: formatColor(formats, f)},
		})
	}

	return chart.PieChart{
		Title:  "Size share",
		Width:  512,
		Height: 512,
		Values: values,
	}, true
}

// buildLoadTimeBarChart 每个变体一根柱，按报告中的记录顺序
func buildLoadTimeBarChart(report *Report) chart.BarChart {
	formats := derivedFormats(report.Records)
	bars := make([]chart.Value, 0, len(report.Records))
	maxY := 0.0
	for _, r := range report.Records {
		label := "Original"
		col := drawing.ColorFromHex("ff7300")
		if !r.IsOriginal {
			label = fmt.Sprintf("%s %d", strings.ToUpper(r.Format), r.Size)
			col = formatColor(formats, r.Format)
		}
		bars = append(bars, chart.Value{
			Value: r.LoadTimeMs,
			Label: label,
			Style: chart.Style{FillColor: col, StrokeColor: col},
		})
		maxY = max(maxY, r.LoadTimeMs)
	}
	if maxY <= 0 {
		maxY = 1
	}

	return chart.BarChart{
		Title:      "Load time (ms)",
		Width:      max(1024, 90*len(bars)),
		Height:     480,
		BarWidth:   50,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: maxY * 1.1},
		},
		Bars: bars,
	}
}

// HTML 模板
const htmlTemplate = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>图片格式对比报告 - {{.Filename}} - {{formatTime .StartedAt}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: linear-gradient(135deg, #0f0f1a 0%, #1a1a2e 50%, #16213e 100%);
            color: #e8e8e8;
            min-height: 100vh;
            padding: 20px;
        }
        .container { max-width: 1400px; margin: 0 auto; }
        h1 { text-align: center; font-size: 2.2em; margin-bottom: 10px; color: #00d4ff; }
        .subtitle { text-align: center; color: #888; margin-bottom: 30px; }
        .card {
            background: rgba(255, 255, 255, 0.03);
            border-radius: 16px;
            padding: 24px;
            margin-bottom: 24px;
            border: 1px solid rgba(255, 255, 255, 0.08);
        }
        .card h2 { font-size: 1.3em; margin-bottom: 16px; color: #00d4ff; }
        .score-grid { display: flex; gap: 16px; justify-content: space-around; flex-wrap: wrap; }
        .score { text-align: center; padding: 16px 24px; border-radius: 12px; background: rgba(0, 0, 0, 0.3); }
        .score .value { font-size: 2.2em; font-weight: 700; }
        .score .detail { font-size: 0.85em; color: #aaa; }
        table { width: 100%; border-collapse: collapse; margin-top: 12px; }
        th, td { padding: 10px 8px; text-align: left; border-bottom: 1px solid rgba(255, 255, 255, 0.08); }
        th { background: rgba(0, 212, 255, 0.1); color: #00d4ff; font-weight: 600; font-size: 0.8em; text-transform: uppercase; }
        td { font-family: 'SF Mono', 'Monaco', 'Consolas', monospace; font-size: 0.9em; }
        .perf-excellent { color: #10b981; }
        .perf-good { color: #34d399; }
        .perf-fair { color: #fbbf24; }
        .perf-poor { color: #f87171; }
        .error { color: #f87171; }
        .na { color: #666; }
    </style>
</head>
<body>
<div class="container">
    <h1>图片格式对比报告</h1>
    <p class="subtitle">{{.Filename}} · 批次 #{{.Generation}} · {{formatTime .StartedAt}} · 耗时 {{formatDuration .Duration}} · 成功 {{len .Records}}/{{.Expected}}</p>

    {{if .Summary}}
    <div class="card">
        <h2>综合评分</h2>
        <div class="score-grid">
            {{range .Summary.Formats}}
            <div class="score">
                <h3>{{upper .Format}}</h3>
                <div class="value">{{printf "%.0f" .Score}}</div>
                <div class="detail">⚡️ 平均 {{printf "%.0f" .AvgLoadTimeMs}}ms · 📦 平均 {{printf "%.1f" .AvgSizeKb}}KB</div>
            </div>
            {{end}}
        </div>
        <p class="subtitle" style="margin-top:16px">
            {{upper .Summary.Delta.Challenger}} 相比 {{upper .Summary.Delta.Baseline}}:
            体积减少 {{printf "%.0f" .Summary.Delta.SizeReductionPct}}%，加载快 {{printf "%.0f" .Summary.Delta.SpeedGainPct}}%
        </p>
    </div>
    {{else}}
    <div class="card">
        <h2>综合评分</h2>
        <p class="error">无法生成汇总: {{.SummaryError}}</p>
    </div>
    {{end}}

    <div class="card">
        <h2>明细数据</h2>
        <table>
            <thead>
                <tr><th>格式</th><th>尺寸</th><th>分辨率</th><th>大小</th><th>加载</th><th>TTFB</th><th>效率</th><th>对比基准</th></tr>
            </thead>
            <tbody>
            {{range .Rows}}
                <tr>
                    <td>{{upper .Format}}{{if .IsOriginal}} (原图){{end}}</td>
                    <td>{{.Size}}px</td>
                    <td>{{.Resolution}}</td>
                    <td>{{printf "%.1f" .SizeKb}} KB</td>
                    <td class="{{perfClass .LoadTimeMs}}">{{printf "%.0f" .LoadTimeMs}} ms</td>
                    <td>{{printf "%.0f" .TTFBMs}} ms</td>
                    <td>{{printf "%.1f" .LoadTimePerKb}} ms/KB</td>
                    <td>{{gain .}}</td>
                </tr>
            {{end}}
            </tbody>
        </table>
    </div>

    {{if .Failures}}
    <div class="card">
        <h2>失败的变体</h2>
        <table>
            <thead><tr><th>变体</th><th>原因</th><th>信息</th></tr></thead>
            <tbody>
            {{range .Failures}}
                <tr><td>{{.Variant.Key}}</td><td class="error">{{.Reason}}</td><td class="na">{{.Message}}</td></tr>
            {{end}}
            </tbody>
        </table>
    </div>
    {{end}}
</div>
</body>
</html>
`
