package scanner

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

type decoder interface {
	decode(img image.Image) (text string, found bool, err error)
}

type qrDecoder struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

func newQRDecoder() *qrDecoder {
	return &qrDecoder{
		reader: qrcode.NewQRCodeReader(),
		hints:  map[gozxing.DecodeHintType]interface{}{gozxing.DecodeHintType_TRY_HARDER: true},
	}
}

// 没有找到二维码不算错误，返回 found=false
func (d *qrDecoder) decode(img image.Image) (text string, found bool, err error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		err = errors.WithStack(err)
		return
	}
	res, err := d.reader.Decode(bmp, d.hints)
	if err != nil {
		var re gozxing.ReaderException
		if errors.As(err, &re) {
			err = nil
			return
		}
		err = errors.WithStack(err)
		return
	}
	return res.GetText(), true, nil
}

// 转成灰度再转回4通道，保证不同相机输出的格式一致
func grayscaleNormalize(img image.Image) image.Image {
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	out := image.NewRGBA(b)
	draw.Draw(out, b, gray, b.Min, draw.Src)
	return out
}

// 编码预览帧：可选缩放，低质量jpeg，base64
func encodePreview(img image.Image, quality, maxWidth int) (string, error) {
	b := img.Bounds()
	if maxWidth > 0 && b.Dx() > maxWidth {
		h := b.Dy() * maxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", errors.WithStack(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
