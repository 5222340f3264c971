// Package texture decodes encoded image bytes into releasable image
// resources. The Image interface models an owning handle: callers release
// images they no longer display, and resource-leak tests can substitute a
// counting double.
package texture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Image is a decoded, owned image resource.
type Image interface {
	Width() int
	Height() int
	// Release frees the resource. An Image must not be used after Release.
	Release()
}

// Decoder turns encoded bytes into an Image.
type Decoder interface {
	Decode(data []byte) (Image, error)
}

// PNGDecoder decodes PNG-encoded bytes.
type PNGDecoder struct{}

func (PNGDecoder) Decode(data []byte) (Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("texture: decode png: %w", err)
	}
	return &pngImage{img: img}, nil
}

type pngImage struct {
	img image.Image
}

func (p *pngImage) Width() int  { return p.img.Bounds().Dx() }
func (p *pngImage) Height() int { return p.img.Bounds().Dy() }

// Release is a no-op for heap-backed images; the handle contract still
// requires callers to call it.
func (p *pngImage) Release() { p.img = nil }

// Pixels exposes the underlying decoded image for rendering.
func (p *pngImage) Pixels() image.Image { return p.img }
