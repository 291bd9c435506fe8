package scanner

import (
	"time"

	"github.com/myafeier/qrcam/camera"
)

// Options 控制采集循环的行为
type Options struct {
	GrayscaleNormalize bool          `yaml:"grayscale_normalize"` // 识别前先转灰度再转回RGBA
	PreviewEveryNth    int           `yaml:"preview_every_nth"`   // 每N帧推送一次预览，<=0 不推送
	InterFrameDelay    time.Duration `yaml:"inter_frame_delay"`
	JPEGQuality        int           `yaml:"jpeg_quality"`
	PreviewMaxWidth    int           `yaml:"preview_max_width"` // 预览最大宽度，0 表示原尺寸
	Resolution         camera.Size   `yaml:"-"`
}

func DefaultOptions() Options {
	return Options{
		PreviewEveryNth: 2,
		InterFrameDelay: 50 * time.Millisecond,
		JPEGQuality:     25,
		Resolution:      camera.Size{Width: 1280, Height: 720},
	}
}

func (o Options) normalized() Options {
	if o.JPEGQuality < 1 {
		o.JPEGQuality = 1
	}
	if o.JPEGQuality > 100 {
		o.JPEGQuality = 100
	}
	if o.InterFrameDelay < 0 {
		o.InterFrameDelay = 0
	}
	if o.PreviewMaxWidth < 0 {
		o.PreviewMaxWidth = 0
	}
	return o
}

// 第 i 帧(从0开始)是否需要推送预览
func (o Options) previewDue(i int) bool {
	return o.PreviewEveryNth > 0 && i%o.PreviewEveryNth == 0
}
