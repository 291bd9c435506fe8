package camera

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Replay 是一个合成的采集源：按顺序回放固定的帧。
// 不循环时回放结束后表现为一个卡住的设备，Read 阻塞到 ctx 取消。
type Replay struct {
	Loop     bool
	Interval time.Duration // 每帧之间的间隔，模拟设备帧率

	frames    []Frame
	mu        sync.Mutex
	reads     int
	exhausted chan struct{}
	once      sync.Once
}

func NewReplay(frames ...Frame) *Replay {
	return &Replay{frames: frames, exhausted: make(chan struct{})}
}

// LoadReplay 读取目录下的 jpg/png 图片作为回放帧，按文件名排序
func LoadReplay(dir string) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var frames []Frame
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		frames = append(frames, Frame{Format: FormatEncoded, Data: data})
	}
	if len(frames) == 0 {
		return nil, errors.Errorf("no images in %s", dir)
	}
	return NewReplay(frames...), nil
}

func (s *Replay) Devices() ([]Device, error) {
	if len(s.frames) == 0 {
		return nil, nil
	}
	return []Device{{Id: 1, Path: "replay", Name: "replay", Driver: "replay"}}, nil
}

func (s *Replay) Open(ctx context.Context, dev Device, want Size) (Stream, error) {
	if len(s.frames) == 0 {
		return nil, ErrNoCamera
	}
	return &replayStream{src: s}, nil
}

// Reads 返回已经交付的帧数
func (s *Replay) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Exhausted 在所有帧都已交付、且有人请求下一帧时关闭
func (s *Replay) Exhausted() <-chan struct{} {
	return s.exhausted
}

type replayStream struct {
	src    *Replay
	next   int
	closed bool
}

func (r *replayStream) Read(ctx context.Context) (f Frame, err error) {
	if r.closed {
		err = errors.New("replay stream closed")
		return
	}
	s := r.src
	if r.next > 0 && s.Interval > 0 {
		t := time.NewTimer(s.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			err = ctx.Err()
			return
		case <-t.C:
		}
	}
	if r.next >= len(s.frames) {
		if !s.Loop {
			s.once.Do(func() { close(s.exhausted) })
			<-ctx.Done()
			err = ctx.Err()
			return
		}
		r.next = 0
	}
	if err = ctx.Err(); err != nil {
		return
	}
	f = s.frames[r.next]
	r.next++
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return
}

func (r *replayStream) Close() error {
	r.closed = true
	return nil
}
