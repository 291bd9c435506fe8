//go:build !linux

package camera

import (
	"context"
	"time"
)

// V4L2 仅在 linux 下可用，其他平台上枚举和打开都返回 ErrNoBackend
type V4L2 struct {
	Pattern     string
	ReadTimeout time.Duration
	BufferCount uint32
}

func NewV4L2() (*V4L2, error) {
	return nil, ErrNoBackend
}

func (s *V4L2) Devices() ([]Device, error) {
	return nil, ErrNoBackend
}

func (s *V4L2) Open(ctx context.Context, dev Device, want Size) (Stream, error) {
	return nil, ErrNoBackend
}
