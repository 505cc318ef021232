package main

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFilename 文件名为空或缺少扩展名
	ErrInvalidFilename = errors.New("invalid filename")
	// ErrInvalidCatalog 尺寸或格式列表不合法
	ErrInvalidCatalog = errors.New("invalid catalog")
	// ErrInsufficientData 汇总所需的分组为空
	ErrInsufficientData = errors.New("insufficient data")
	// ErrSuperseded 批次已被新的上传取代
	ErrSuperseded = errors.New("generation superseded")
)

// FailureReason 探测失败原因
type FailureReason string

const (
	ReasonResourceError     FailureReason = "ResourceError"
	ReasonMissingSizeHeader FailureReason = "MissingSizeHeader"
	ReasonTimeout           FailureReason = "Timeout"
)

// ProbeFailure 单个变体的探测失败，不影响同批次其他变体
type ProbeFailure struct {
	Variant Variant       `json:"variant"`
	Reason  FailureReason `json:"reason"`
	Message string        `json:"message"`
	err     error
}

func newProbeFailure(v Variant, reason FailureReason, err error) *ProbeFailure {
	f := &ProbeFailure{Variant: v, Reason: reason, err: err}
	if err != nil {
		f.Message = err.Error()
	}
	return f
}

func (f *ProbeFailure) Error() string {
	if f.Message == "" {
		return fmt.Sprintf("probe %s: %s", f.Variant.Key(), f.Reason)
	}
	return fmt.Sprintf("probe %s: %s: %s", f.Variant.Key(), f.Reason, f.Message)
}

func (f *ProbeFailure) Unwrap() error {
	return f.err
}
