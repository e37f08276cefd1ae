package degrade

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// Stage is one image -> image transform.
type Stage struct {
	// Name identifies the stage in logs and completion digests, e.g. "jpeg(q=30)".
	Name  string
	Apply func(image.Image) (image.Image, error)
}

// Pipeline is an ordered sequence of stages.
type Pipeline []Stage

// Run applies every stage in order.
func (p Pipeline) Run(img image.Image) (image.Image, error) {
	out := Normalize(img)
	for _, s := range p {
		next, err := s.Apply(out)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", s.Name, err)
		}
		out = Normalize(next)
	}
	return out, nil
}

// Names returns the stage names in order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Name
	}
	return names
}

// JPEG returns a stage that encodes to JPEG in memory at quality and
// decodes the result back. Quality is clamped to [1, 100] by the encoder.
func JPEG(quality int) Stage {
	return Stage{
		Name: fmt.Sprintf("jpeg(q=%d)", quality),
		Apply: func(img image.Image) (image.Image, error) {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
				return nil, fmt.Errorf("failed to encode jpeg: %w", err)
			}
			out, err := jpeg.Decode(&buf)
			if err != nil {
				return nil, fmt.Errorf("failed to decode jpeg: %w", err)
			}
			return out, nil
		},
	}
}

// Normalize converts img to the pinned channel convention: *image.Gray for
// grayscale sources, opaque *image.RGBA otherwise. The result always has
// its origin at (0, 0). Inputs already in that form are returned as is.
func Normalize(img image.Image) image.Image {
	b := img.Bounds()
	rect := image.Rect(0, 0, b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray:
		if b.Min == (image.Point{}) {
			return src
		}
		dst := image.NewGray(rect)
		draw.Draw(dst, rect, src, b.Min, draw.Src)
		return dst
	case *image.Gray16:
		dst := image.NewGray(rect)
		draw.Draw(dst, rect, src, b.Min, draw.Src)
		return dst
	case *image.RGBA:
		if b.Min == (image.Point{}) && src.Opaque() {
			return src
		}
	}

	dst := image.NewRGBA(rect)
	draw.Draw(dst, rect, img, b.Min, draw.Src)
	// Premultiplied colors with full alpha are the composite over black.
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// Channels reports the channel count of a normalized image: 1 for gray, 3 otherwise.
func Channels(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	default:
		return 3
	}
}
