package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
)

// ResizeForEval resizes an image the way the evaluation dataset expects.
//
// With square set the image is stretched to size x size. Otherwise the longest side becomes
// size and the aspect ratio is kept; an image that already matches is returned unchanged.
//
// Arguments:
//   - img: The decoded source image.
//   - size: The target size in pixels.
//   - square: Whether to stretch to a square.
//
// Returns:
//   - image.Image: The resized image.
//   - float32: The horizontal scale factor applied.
//   - float32: The vertical scale factor applied.
func ResizeForEval(img image.Image, size int, square bool) (image.Image, float32, float32) {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if size <= 0 || w == 0 || h == 0 {
		return img, 1, 1
	}

	if square {
		if w == size && h == size {
			return img, 1, 1
		}
		resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)
		return resized, float32(size) / float32(w), float32(size) / float32(h)
	}

	r := float32(size) / float32(max(w, h))
	if r == 1 {
		return img, 1, 1
	}
	nw := max(int(float32(w)*r), 1)
	nh := max(int(float32(h)*r), 1)
	resized := resize.Resize(uint(nw), uint(nh), img, resize.Bilinear)
	return resized, float32(nw) / float32(w), float32(nh) / float32(h)
}

// Letterbox describes how an image was fitted into a fixed model input.
type Letterbox struct {
	// Scale is the uniform scale applied to the source image.
	Scale float32
	// PadLeft is the horizontal offset of the scaled image inside the canvas.
	PadLeft int
	// PadTop is the vertical offset of the scaled image inside the canvas.
	PadTop int
}

// Unmap converts a box from letterboxed canvas coordinates back to source image coordinates.
func (l Letterbox) Unmap(r Rect) Rect {
	if l.Scale == 0 {
		return r
	}
	px := float32(l.PadLeft)
	py := float32(l.PadTop)
	return Rect{
		X1: (r.X1 - px) / l.Scale,
		Y1: (r.Y1 - py) / l.Scale,
		X2: (r.X2 - px) / l.Scale,
		Y2: (r.Y2 - py) / l.Scale,
	}
}

// LetterboxImage scales img uniformly to fit width x height and pads the rest with fill.
//
// Arguments:
//   - img: The source image.
//   - width: The canvas width.
//   - height: The canvas height.
//   - fill: The padding color.
//
// Returns:
//   - *image.RGBA: The letterboxed canvas.
//   - Letterbox: The transform needed to map boxes back to img.
func LetterboxImage(img image.Image, width, height int, fill color.Color) (*image.RGBA, Letterbox) {
	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)
	if srcW == 0 || srcH == 0 {
		return canvas, Letterbox{Scale: 1}
	}

	scale := min(float32(width)/float32(srcW), float32(height)/float32(srcH))
	newW := max(int(float32(srcW)*scale), 1)
	newH := max(int(float32(srcH)*scale), 1)
	padLeft := (width - newW) / 2
	padTop := (height - newH) / 2

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)
	draw.Draw(canvas, image.Rect(padLeft, padTop, padLeft+newW, padTop+newH),
		resized, resized.Bounds().Min, draw.Src)

	return canvas, Letterbox{Scale: scale, PadLeft: padLeft, PadTop: padTop}
}
