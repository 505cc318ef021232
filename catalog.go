package main

import (
	"fmt"
	"net/url"
	"strings"
)

// ===============================
// 变体目录
// ===============================

var (
	// DefaultSizes 默认目标宽度
	DefaultSizes = []int{200, 400, 800}
	// DefaultFormats 默认目标格式
	DefaultFormats = []string{"jpeg", "webp"}
)

// splitFilename 拆分出去掉最后一个扩展名的主名和小写扩展名
func splitFilename(filename string) (base, ext string, err error) {
	if filename == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidFilename)
	}
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return "", "", fmt.Errorf("%w: %q has no extension", ErrInvalidFilename, filename)
	}
	base, ext = filename[:idx], strings.ToLower(filename[idx+1:])
	if base == "" || ext == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return base, ext, nil
}

// BuildCatalog 为上传后的文件名生成待测变体列表
// 第一项为原图，之后按尺寸优先的顺序排列 (size, format) 组合
func BuildCatalog(baseURL, filename string, sizes []int, formats []string) ([]Variant, error) {
	base, ext, err := splitFilename(filename)
	if err != nil {
		return nil, err
	}
	if len(sizes) == 0 || len(formats) == 0 {
		return nil, fmt.Errorf("%w: sizes and formats must not be empty", ErrInvalidCatalog)
	}

	prefix := strings.TrimRight(baseURL, "/") + "/image/"
	variants := make([]Variant, 0, 1+len(sizes)*len(formats))
	variants = append(variants, Variant{
		Size:   OriginalSize,
		Format: ext,
		URL:    prefix + url.PathEscape(filename),
	})

	seen := make(map[string]bool, cap(variants))
	for _, size := range sizes {
		if size <= 0 {
			return nil, fmt.Errorf("%w: size %d", ErrInvalidCatalog, size)
		}
		for _, format := range formats {
			if format == "" {
				return nil, fmt.Errorf("%w: empty format", ErrInvalidCatalog)
			}
			v := Variant{
				Size:   size,
				Format: format,
				URL:    prefix + url.PathEscape(fmt.Sprintf("%s_%d.%s", base, size, format)),
			}
			if seen[v.Key()] {
				return nil, fmt.Errorf("%w: duplicate variant %s", ErrInvalidCatalog, v.Key())
			}
			seen[v.Key()] = true
			variants = append(variants, v)
		}
	}

	return variants, nil
}
