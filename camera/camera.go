package camera

import (
	"context"
	"log"

	"github.com/pkg/errors"
)

func init() {
	log.SetPrefix("[qrcam]")
	log.SetFlags(log.Lshortfile | log.Ltime)
}

var (
	ErrNoBackend   = errors.New("no camera backend available")
	ErrNoCamera    = errors.New("no camera device found")
	ErrReadTimeout = errors.New("timed out waiting for frame")
)

// 可用的采集设备
type Device struct {
	Id     int    `json:"id"`
	Path   string `json:"path"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

// Backend 负责枚举和打开设备
type Backend interface {
	Devices() ([]Device, error)
	Open(ctx context.Context, dev Device, want Size) (Stream, error)
}

// Stream 是一个已打开的采集流，由一个会话独占。
// Read 必须在 ctx 取消后尽快返回。
type Stream interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Size 分辨率
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (s Size) area() int {
	return s.Width * s.Height
}

// PickSize 优先返回与 want 完全一致的分辨率，否则返回支持的最大分辨率
func PickSize(supported []Size, want Size) (best Size, ok bool) {
	for _, s := range supported {
		if s == want {
			return s, true
		}
		if s.area() > best.area() {
			best = s
			ok = true
		}
	}
	return
}
