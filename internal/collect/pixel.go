package collect

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
)

// Panel is a linear OLED power model: each field is the power, in watts,
// the whole panel draws when that channel is at full intensity everywhere.
type Panel struct {
	Red   float64
	Green float64
	Blue  float64
}

// DefaultPanel puts a full white screen at 32 W, with blue the most
// expensive subpixel.
func DefaultPanel() Panel {
	return Panel{Red: 8, Green: 10, Blue: 14}
}

// gamma maps 8-bit sRGB values to linear light.
var gamma = func() [256]float64 {
	var lut [256]float64
	for i := range lut {
		lut[i] = math.Pow(float64(i)/255, 2.2)
	}
	return lut
}()

// Power estimates the panel power needed to display img, averaged over
// every pixel so the result does not depend on resolution.
func (p Panel) Power(img image.Image) float64 {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	var r, g, bl float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += gamma[cr>>8]
			g += gamma[cg>>8]
			bl += gamma[cb>>8]
		}
	}
	count := float64(n)
	return p.Red*r/count + p.Green*g/count + p.Blue*bl/count
}

func decodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return img, nil
}
