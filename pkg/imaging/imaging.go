// Package imaging decodes photos, crops them to fill a target box and
// re-encodes them for the image proxy and the card renderer.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	// MaxDimension bounds requested widths and heights.
	MaxDimension = 2000
	// DefaultQuality is used when no quality is requested.
	DefaultQuality = 80
	// OutputContentType is the format every transform produces.
	OutputContentType = "image/jpeg"
	// MaxPixels caps the decoded size of a source image.
	MaxPixels = 40_000_000
)

var (
	ErrDecode        = errors.New("unable to decode image")
	ErrEmptyImage    = errors.New("image has no pixels")
	ErrInvalidTarget = errors.New("target box must have a positive dimension")
	ErrInvalidData   = errors.New("invalid data url")
)

// Decode reads any registered format, falling back to WebP. Sources whose
// header declares more than MaxPixels are refused before any pixel is allocated.
func Decode(raw []byte) (image.Image, error) {
	if err := checkDimensions(raw); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err == nil {
		return img, nil
	}
	if decoded, webpErr := webp.Decode(bytes.NewReader(raw)); webpErr == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrDecode, err)
}

func checkDimensions(raw []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		webpCfg, webpErr := webp.DecodeConfig(bytes.NewReader(raw))
		if webpErr != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		cfg = webpCfg
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ErrEmptyImage
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds pixel budget", ErrDecode, cfg.Width, cfg.Height)
	}
	return nil
}

// TargetSize resolves the output box. A zero side follows the source aspect ratio.
func TargetSize(srcW, srcH, width, height int) (int, int, error) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0, ErrEmptyImage
	}
	switch {
	case width <= 0 && height <= 0:
		return 0, 0, ErrInvalidTarget
	case width <= 0:
		width = max(1, (srcW*height+srcH/2)/srcH)
	case height <= 0:
		height = max(1, (srcH*width+srcW/2)/srcW)
	}
	return min(width, MaxDimension), min(height, MaxDimension), nil
}

// Cover scales img to fill width x height and crops the overflow around the centre.
func Cover(img image.Image, width, height int) (image.Image, error) {
	b := img.Bounds()
	w, h, err := TargetSize(b.Dx(), b.Dy(), width, height)
	if err != nil {
		return nil, err
	}

	// Largest centred source rectangle with the target aspect ratio.
	cropW, cropH := b.Dx(), b.Dx()*h/w
	if cropH > b.Dy() {
		cropW, cropH = b.Dy()*w/h, b.Dy()
	}
	cropW, cropH = max(cropW, 1), max(cropH, 1)
	x0 := b.Min.X + (b.Dx()-cropW)/2
	y0 := b.Min.Y + (b.Dy()-cropH)/2
	src := image.Rect(x0, y0, x0+cropW, y0+cropH)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, src, xdraw.Src, nil)
	return dst, nil
}

// EncodeJPEG flattens transparency onto white and encodes at quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	canvas := image.NewRGBA(img.Bounds())
	stddraw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, stddraw.Src)
	stddraw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, stddraw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Transform decodes raw, cover-resizes it and re-encodes it as JPEG.
func Transform(raw []byte, width, height, quality int) ([]byte, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	resized, err := Cover(img, width, height)
	if err != nil {
		return nil, err
	}
	return EncodeJPEG(resized, quality)
}

// NormalizeJPEG re-encodes any decodable image as JPEG without resizing.
func NormalizeJPEG(raw []byte, quality int) ([]byte, error) {
	img, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return EncodeJPEG(img, quality)
}

// EncodeDataURL renders bytes as a base64 data URL.
func EncodeDataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL parses a base64 data URL into its bytes and media type.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, "", ErrInvalidData
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, "", ErrInvalidData
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return data, strings.TrimSuffix(meta, ";base64"), nil
}

// IsDataURL reports whether s carries an inline image.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:image/")
}
