//go:build linux

package camera

import (
	"context"
	"log"
	"path/filepath"
	"sort"
	"time"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

const (
	fourccMJPEG webcam.PixelFormat = 0x47504A4D // 'MJPG'
	fourccYUYV  webcam.PixelFormat = 0x56595559 // 'YUYV'

	waitSliceSeconds = 1 // WaitForFrame 的超时单位是秒
)

// V4L2 通过 /dev/video* 访问 UVC 摄像头
type V4L2 struct {
	Pattern     string        // 设备匹配规则，默认 /dev/video*
	ReadTimeout time.Duration // 单帧等待上限，0 表示不限
	BufferCount uint32
}

func NewV4L2() (*V4L2, error) {
	return &V4L2{Pattern: "/dev/video*", ReadTimeout: 5 * time.Second, BufferCount: 4}, nil
}

// 查看设备列表
func (s *V4L2) Devices() (list []Device, err error) {
	paths, err := filepath.Glob(s.Pattern)
	if err != nil {
		err = errors.WithStack(err)
		return
	}
	sort.Strings(paths)
	for _, p := range paths {
		cam, e := webcam.Open(p)
		if e != nil {
			// 同一个摄像头常有多个节点，元数据节点打不开或不能采集
			continue
		}
		formats := cam.GetSupportedFormats()
		cam.Close()
		if _, ok := pickFormat(formats); !ok {
			continue
		}
		list = append(list, Device{Id: len(list) + 1, Path: p, Name: filepath.Base(p), Driver: "v4l2"})
	}
	return
}

func pickFormat(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, bool) {
	if _, ok := formats[fourccMJPEG]; ok {
		return fourccMJPEG, true
	}
	if _, ok := formats[fourccYUYV]; ok {
		return fourccYUYV, true
	}
	return 0, false
}

func frameSizes(cam *webcam.Webcam, f webcam.PixelFormat, want Size) (list []Size) {
	for _, fs := range cam.GetSupportedFrameSizes(f) {
		if fs.StepWidth == 0 && fs.StepHeight == 0 || fs.MinWidth == fs.MaxWidth && fs.MinHeight == fs.MaxHeight {
			list = append(list, Size{Width: int(fs.MaxWidth), Height: int(fs.MaxHeight)})
			continue
		}
		// 步进型：范围内的目标分辨率直接可用
		w, h := uint32(want.Width), uint32(want.Height)
		if w >= fs.MinWidth && w <= fs.MaxWidth && h >= fs.MinHeight && h <= fs.MaxHeight {
			list = append(list, want)
		}
		list = append(list, Size{Width: int(fs.MaxWidth), Height: int(fs.MaxHeight)})
	}
	return
}

// 打开设备并开始连续采集
func (s *V4L2) Open(ctx context.Context, dev Device, want Size) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cam, err := webcam.Open(dev.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dev.Path)
	}

	format, ok := pickFormat(cam.GetSupportedFormats())
	if !ok {
		cam.Close()
		return nil, errors.Errorf("%s: neither MJPEG nor YUYV supported", dev.Path)
	}
	size, ok := PickSize(frameSizes(cam, format, want), want)
	if !ok {
		size = want
	}
	_, w, h, err := cam.SetImageFormat(format, uint32(size.Width), uint32(size.Height))
	if err != nil {
		cam.Close()
		return nil, errors.Wrapf(err, "set format %dx%d", size.Width, size.Height)
	}
	if s.BufferCount > 0 {
		if err = cam.SetBufferCount(s.BufferCount); err != nil {
			cam.Close()
			return nil, errors.WithStack(err)
		}
	}
	if err = cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "start streaming")
	}

	pf := FormatMJPEG
	if format == fourccYUYV {
		pf = FormatYUYV
	}
	log.Printf("opened %s at %dx%d (%s)\n", dev.Path, w, h, pf)
	return &v4l2Stream{cam: cam, width: int(w), height: int(h), format: pf, timeout: s.ReadTimeout}, nil
}

// frameSource 是 v4l2Stream 用到的 *webcam.Webcam 方法
type frameSource interface {
	WaitForFrame(timeout uint32) error
	ReadFrame() ([]byte, error)
	StopStreaming() error
	Close() error
}

type v4l2Stream struct {
	cam     frameSource
	width   int
	height  int
	format  PixelFormat
	timeout time.Duration
}

func (s *v4l2Stream) Read(ctx context.Context) (f Frame, err error) {
	var deadline time.Time
	if s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}
	for {
		if err = ctx.Err(); err != nil {
			return
		}
		err = s.cam.WaitForFrame(waitSliceSeconds)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			if !deadline.IsZero() && time.Now().After(deadline) {
				err = ErrReadTimeout
				return
			}
			continue
		default:
			err = errors.Wrap(err, "wait for frame")
			return
		}

		var data []byte
		data, err = s.cam.ReadFrame()
		if err != nil {
			err = errors.Wrap(err, "read frame")
			return
		}
		if len(data) == 0 {
			continue
		}
		// 驱动缓冲区会被复用，需要拷贝
		buf := make([]byte, len(data))
		copy(buf, data)
		f = Frame{Width: s.width, Height: s.height, Format: s.format, Data: buf}
		return
	}
}

func (s *v4l2Stream) Close() error {
	s.cam.StopStreaming()
	return errors.WithStack(s.cam.Close())
}
