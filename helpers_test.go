package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestLogger() *Logger {
	return NewWriterLogger(io.Discard)
}

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(w, h)))
	return buf.Bytes()
}

func encodeJPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(w, h), &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

// imageBackend 模拟上传后端的 /image/<name> 接口
type imageBackend struct {
	t *testing.T

	mu       sync.Mutex
	images   map[string][]byte
	noLength map[string]bool
	blockGET map[string]chan struct{} // 按文件名前缀阻塞 GET
	authSeen bool

	requests atomic.Int64
}

func newImageBackend(t *testing.T) (*imageBackend, *httptest.Server) {
	b := &imageBackend{
		t:        t,
		images:   make(map[string][]byte),
		noLength: make(map[string]bool),
		blockGET: make(map[string]chan struct{}),
	}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	return b, srv
}

// addCatalog 注册原图和默认的 3 个尺寸 × 2 种格式
func (b *imageBackend) addCatalog(filename string, width, height int) {
	b.t.Helper()
	base := strings.TrimSuffix(filename, filename[strings.LastIndex(filename, "."):])

	b.mu.Lock()
	defer b.mu.Unlock()
	b.images[filename] = encodePNG(b.t, width, height)
	for _, size := range DefaultSizes {
		h := height * size / width
		b.images[fmt.Sprintf("%s_%d.jpeg", base, size)] = encodeJPEG(b.t, size, h)
		// webp 解码器按内容识别格式，测试中用 png 数据代替
		b.images[fmt.Sprintf("%s_%d.webp", base, size)] = encodePNG(b.t, size, h)
	}
}

func (b *imageBackend) dropLength(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.noLength[name] = true
}

// block 阻塞前缀匹配的 GET 请求，返回释放函数
func (b *imageBackend) block(prefix string) func() {
	ch := make(chan struct{})
	b.mu.Lock()
	b.blockGET[prefix] = ch
	b.mu.Unlock()

	var once sync.Once
	release := func() { once.Do(func() { close(ch) }) }
	b.t.Cleanup(release)
	return release
}

func (b *imageBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.requests.Add(1)

	name, ok := strings.CutPrefix(r.URL.Path, "/image/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	b.mu.Lock()
	data, found := b.images[name]
	noLength := b.noLength[name]
	if r.Header.Get("Authorization") != "" {
		b.authSeen = true
	}
	var wait chan struct{}
	for prefix, ch := range b.blockGET {
		if strings.HasPrefix(name, prefix) {
			wait = ch
		}
	}
	b.mu.Unlock()

	if !found {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodHead:
		if !noLength {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		if wait != nil {
			select {
			case <-wait:
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *imageBackend) sawAuthorization() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authSeen
}

func (b *imageBackend) size(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.images[name])
}
