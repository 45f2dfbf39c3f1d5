// Package imageprep normalizes captured bottle photos before they are sent to
// the recognition service or stored.
package imageprep

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// Decoders for camera-native and uploaded formats.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxWidth caps the output width in pixels.
	MaxWidth = 800
	// Quality is the JPEG quality factor of the output.
	Quality = 80
)

var (
	// ErrEmptyImage is returned for a zero-length input.
	ErrEmptyImage = errors.New("image is empty")
	// ErrUnsupportedFormat is returned when no registered decoder accepts the input.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// Error describes a failed conversion step.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("imageprep %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Normalize decodes data, scales it down to MaxWidth when wider and
// re-encodes it as JPEG. The returned slice never aliases data.
func Normalize(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &Error{Op: "decode", Err: ErrEmptyImage}
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, &Error{Op: "decode", Err: ErrUnsupportedFormat}
		}
		return nil, &Error{Op: "decode", Err: fmt.Errorf("%s: %w", format, err)}
	}

	bounds := src.Bounds()
	width, height := targetSize(bounds.Dx(), bounds.Dy())

	var out image.Image = src
	if width != bounds.Dx() || height != bounds.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, &Error{Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

func targetSize(width, height int) (int, int) {
	if width <= MaxWidth || width == 0 {
		return width, height
	}
	scaled := int(float64(height)*float64(MaxWidth)/float64(width) + 0.5)
	if scaled < 1 {
		scaled = 1
	}
	return MaxWidth, scaled
}
