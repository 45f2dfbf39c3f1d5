package imageprep

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
)

func solidImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(width, height)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeScalesWideImages(t *testing.T) {
	t.Parallel()

	input := encodePNG(t, 1600, 1200)
	original := append([]byte(nil), input...)

	out, err := Normalize(input)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}

	w, h, err := dimensions(out)
	if err != nil {
		t.Fatalf("dimensions returned error: %v", err)
	}
	if w != 800 || h != 600 {
		t.Fatalf("expected 800x600, got %dx%d", w, h)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil || format != "jpeg" {
		t.Fatalf("expected jpeg output, got %q (%v)", format, err)
	}

	if !bytes.Equal(input, original) {
		t.Fatal("input buffer was mutated")
	}
}

func TestNormalizeKeepsNarrowImages(t *testing.T) {
	t.Parallel()

	out, err := Normalize(encodePNG(t, 320, 640))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	w, h, err := dimensions(out)
	if err != nil {
		t.Fatalf("dimensions returned error: %v", err)
	}
	if w != 320 || h != 640 {
		t.Fatalf("expected 320x640, got %dx%d", w, h)
	}
}

func TestNormalizeAcceptsBMP(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, solidImage(1000, 500)); err != nil {
		t.Fatalf("encode bmp: %v", err)
	}

	out, err := Normalize(buf.Bytes())
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	w, h, _ := dimensions(out)
	if w != 800 || h != 400 {
		t.Fatalf("expected 800x400, got %dx%d", w, h)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Normalize([]byte("definitely not an image"))
	var prepErr *Error
	if !errors.As(err, &prepErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}

	if _, err := Normalize(nil); !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
}

func dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
