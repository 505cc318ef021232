package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ===============================
// 加载探测
// ===============================

// 默认单个探测超时
const defaultProbeTimeout = 10 * time.Second

// Prober 测量单个变体的加载耗时和传输大小
type Prober struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewProber 创建探测器，timeout <= 0 时使用默认值
func NewProber(client *http.Client, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Prober{
		client:    client,
		timeout:   timeout,
		userAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// Measure 依次执行两步：GET 并解码图片计时，然后 HEAD 读取 Content-Length
// 失败时返回 *ProbeFailure
func (p *Prober) Measure(ctx context.Context, v Variant) (MeasurementRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	loadTime, ttfb, res, err := p.load(ctx, v.URL)
	if err != nil {
		return MeasurementRecord{}, p.failure(ctx, v, ReasonResourceError, err)
	}

	length, err := p.contentLength(ctx, v.URL)
	if err != nil {
		reason := ReasonMissingSizeHeader
		if !errors.Is(err, errNoContentLength) {
			reason = ReasonResourceError
		}
		return MeasurementRecord{}, p.failure(ctx, v, reason, err)
	}

	loadTimeMs := float64(loadTime.Microseconds()) / 1000.0
	sizeKb := float64(length) / 1024.0
	perKb := math.Round(loadTimeMs / sizeKb)
	if math.IsNaN(perKb) || math.IsInf(perKb, 0) {
		return MeasurementRecord{}, newProbeFailure(v, ReasonMissingSizeHeader,
			fmt.Errorf("无法计算 ms/KB: %.2fms / %.3fKB", loadTimeMs, sizeKb))
	}

	size := v.Size
	if v.IsOriginal() {
		size = res.Width
	}

	return MeasurementRecord{
		Size:          size,
		Format:        v.Format,
		URL:           v.URL,
		LoadTimeMs:    loadTimeMs,
		TTFBMs:        float64(ttfb.Microseconds()) / 1000.0,
		Bytes:         length,
		SizeKb:        sizeKb,
		LoadTimePerKb: perKb,
		Resolution:    res,
		PixelCount:    res.Width * res.Height,
		IsOriginal:    v.IsOriginal(),
	}, nil
}

// failure 超时优先归类为 Timeout
func (p *Prober) failure(ctx context.Context, v Variant, reason FailureReason, err error) *ProbeFailure {
	if isTimeout(ctx, err) {
		reason = ReasonTimeout
	}
	return newProbeFailure(v, reason, err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (p *Prober) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "image/webp,image/*,*/*;q=0.8")
	return req, nil
}

// load 请求图片并完整解码，返回从请求开始到解码完成的耗时
func (p *Prober) load(ctx context.Context, url string) (time.Duration, time.Duration, Resolution, error) {
	req, err := p.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return 0, 0, Resolution{}, err
	}

	var start time.Time
	var ttfb time.Duration
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			ttfb = time.Since(start)
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	start = time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, 0, Resolution{}, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return 0, 0, Resolution{}, fmt.Errorf("状态码异常: %d", resp.StatusCode)
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return 0, 0, Resolution{}, fmt.Errorf("解码失败: %w", err)
	}
	elapsed := time.Since(start)

	b := img.Bounds()
	return elapsed, ttfb, Resolution{Width: b.Dx(), Height: b.Dy()}, nil
}

var errNoContentLength = errors.New("响应缺少 Content-Length")

// contentLength 通过 HEAD 请求读取资源大小，缺失或为 0 均视为失败
func (p *Prober) contentLength(ctx context.Context, url string) (int64, error) {
	req, err := p.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return 0, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// 传输层在读取响应时就会拒绝非法的 Content-Length
		if strings.Contains(err.Error(), "bad Content-Length") {
			return 0, fmt.Errorf("%w: %v", errNoContentLength, err)
		}
		return 0, fmt.Errorf("HEAD 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("HEAD 状态码异常: %d", resp.StatusCode)
	}

	length := resp.ContentLength
	if length < 0 {
		if s := resp.Header.Get("Content-Length"); s != "" {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				length = n
			}
		}
	}
	if length <= 0 {
		return 0, errNoContentLength
	}
	return length, nil
}
