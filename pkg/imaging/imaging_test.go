package imaging

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int, fill color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTargetSize(t *testing.T) {
	cases := []struct {
		name         string
		srcW, srcH   int
		w, h         int
		wantW, wantH int
	}{
		{"both", 400, 200, 100, 100, 100, 100},
		{"width only", 400, 200, 100, 0, 100, 50},
		{"height only", 400, 200, 0, 50, 100, 50},
		{"clamped", 400, 200, 5000, 10, 2000, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h, err := TargetSize(tc.srcW, tc.srcH, tc.w, tc.h)
			require.NoError(t, err)
			assert.Equal(t, tc.wantW, w)
			assert.Equal(t, tc.wantH, h)
		})
	}

	_, _, err := TargetSize(10, 10, 0, 0)
	require.ErrorIs(t, err, ErrInvalidTarget)
}

func TestCoverCropsToBox(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 100))
	// Left and right thirds red, centre third blue: a square cover keeps the centre.
	for y := 0; y < 100; y++ {
		for x := 0; x < 300; x++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 100 && x < 200 {
				c = color.RGBA{B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}

	out, err := Cover(img, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 50), out.Bounds())

	r, _, b, _ := out.At(25, 25).RGBA()
	assert.Greater(t, b, r)
}

func TestTransformProducesJPEG(t *testing.T) {
	raw := pngBytes(t, 120, 80, color.RGBA{G: 200, A: 255})

	out, err := Transform(raw, 60, 60, 70)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 60, decoded.Bounds().Dx())
	assert.Equal(t, 60, decoded.Bounds().Dy())
}

func TestTransformRejectsGarbage(t *testing.T) {
	_, err := Transform([]byte("definitely not an image"), 10, 10, 80)
	require.ErrorIs(t, err, ErrDecode)
}

func TestDataURLRoundTrip(t *testing.T) {
	raw := pngBytes(t, 2, 2, color.White)
	url := EncodeDataURL("image/png", raw)
	assert.True(t, IsDataURL(url))

	data, ct, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, raw, data)

	_, _, err = DecodeDataURL("https://example.com/a.png")
	require.ErrorIs(t, err, ErrInvalidData)
	_, _, err = DecodeDataURL("data:image/png,plain")
	require.ErrorIs(t, err, ErrInvalidData)
}

func TestNormalizeJPEG(t *testing.T) {
	out, err := NormalizeJPEG(pngBytes(t, 10, 20, color.Black), 90)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 10, cfg.Width)
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h with no pixel data.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8], ihdr[9] = 8, 2 // 8-bit RGB

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodeRejectsOversizedDimensions(t *testing.T) {
	huge := pngHeader(30000, 30000)
	cfg, _, err := image.DecodeConfig(bytes.NewReader(huge))
	require.NoError(t, err)
	assert.Equal(t, 30000, cfg.Width)

	_, err = Decode(huge)
	require.ErrorIs(t, err, ErrDecode)
	_, err = Transform(huge, 100, 100, 80)
	require.ErrorIs(t, err, ErrDecode)
	_, err = NormalizeJPEG(huge, 80)
	require.ErrorIs(t, err, ErrDecode)
}
