package camera

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"
)

type PixelFormat uint8

const (
	FormatEncoded PixelFormat = iota // 任意已注册的图片编码(jpeg/png)
	FormatMJPEG                      // Motion-JPEG，每帧是一张完整的jpeg
	FormatYUYV                       // YUYV 4:2:2 打包格式
)

func (f PixelFormat) String() string {
	switch f {
	case FormatEncoded:
		return "encoded"
	case FormatMJPEG:
		return "mjpeg"
	case FormatYUYV:
		return "yuyv"
	}
	return "unknown"
}

// Frame 一次采集得到的原始数据，不跨帧保留
type Frame struct {
	Width  int
	Height int
	Format PixelFormat
	Data   []byte
}

// Decode 把原始数据转成标准图像
func (f Frame) Decode() (img image.Image, err error) {
	switch f.Format {
	case FormatMJPEG:
		img, err = jpeg.Decode(bytes.NewReader(f.Data))
	case FormatEncoded:
		img, _, err = image.Decode(bytes.NewReader(f.Data))
	case FormatYUYV:
		img, err = decodeYUYV(f.Data, f.Width, f.Height)
	default:
		err = errors.Errorf("unsupported pixel format %d", f.Format)
	}
	if err != nil {
		err = errors.Wrapf(err, "decode %s frame", f.Format)
	}
	return
}

// YUYV: 每两个像素共用一组 U/V，字节顺序为 Y0 U Y1 V
func decodeYUYV(data []byte, width, height int) (*image.YCbCr, error) {
	if width <= 0 || height <= 0 || width%2 != 0 {
		return nil, errors.Errorf("invalid yuyv geometry %dx%d", width, height)
	}
	if len(data) < width*height*2 {
		return nil, errors.Errorf("short yuyv frame: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := data[y*width*2 : (y+1)*width*2]
		for x := 0; x < width; x += 2 {
			p := row[x*2 : x*2+4]
			img.Y[y*img.YStride+x] = p[0]
			img.Y[y*img.YStride+x+1] = p[2]
			ci := y*img.CStride + x/2
			img.Cb[ci] = p[1]
			img.Cr[ci] = p[3]
		}
	}
	return img, nil
}
