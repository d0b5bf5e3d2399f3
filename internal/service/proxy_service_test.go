package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
	"github.com/noah-isme/idcard-api/pkg/imaging"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func respond(status int, contentType string, body []byte) *http.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{StatusCode: status, Header: header, Body: io.NopCloser(bytes.NewReader(body))}
}

func newTestProxyService(rt roundTripFunc) *ProxyService {
	return NewProxyService(ProxyConfig{
		PrimaryHost:   "student-admin.harbour.space",
		SecondaryHost: "digitaloceanspaces.com",
		Token:         "roster-token",
		MaxBytes:      1 << 20,
		FetchTimeout:  time.Second,
	}, &http.Client{Transport: rt}, nil, nil, nil, nil)
}

func TestProxyParseRequestOrder(t *testing.T) {
	svc := newTestProxyService(nil)

	_, err := svc.ParseRequest("", "", "", "")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.ParseRequest("https://evil.com/a.jpg", "5000", "x", "")
	require.ErrorIs(t, err, appErrors.ErrDomainNotAllowed)

	_, err = svc.ParseRequest("https://evildigitaloceanspaces.com/a.jpg", "", "", "")
	require.ErrorIs(t, err, appErrors.ErrDomainNotAllowed)

	_, err = svc.ParseRequest("ftp://student-admin.harbour.space/a.jpg", "", "", "")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	for _, tc := range []struct{ w, h, q string }{{"5000", "", ""}, {"0", "", ""}, {"", "abc", ""}, {"", "", "101"}} {
		_, err = svc.ParseRequest("https://student-admin.harbour.space/a.jpg", tc.w, tc.h, tc.q)
		require.ErrorIs(t, err, appErrors.ErrValidation, tc)
	}

	req, err := svc.ParseRequest("https://bucket.fra1.digitaloceanspaces.com/a.jpg", "2000", "1", "")
	require.NoError(t, err)
	assert.Equal(t, 2000, req.Width)
	assert.Equal(t, 1, req.Height)
	assert.Equal(t, imaging.DefaultQuality, req.Quality)
	assert.True(t, req.Resize())
}

func TestProxyTokenOnlyForPrimaryHost(t *testing.T) {
	var tokens []string
	svc := newTestProxyService(func(r *http.Request) (*http.Response, error) {
		tokens = append(tokens, r.Header.Get("Access-Token"))
		assert.Equal(t, "Student-ID-Generator/1.0", r.Header.Get("User-Agent"))
		return respond(http.StatusOK, "image/png", []byte("raw")), nil
	})

	for _, raw := range []string{"https://student-admin.harbour.space/p.png", "https://bucket.digitaloceanspaces.com/p.png"} {
		req, err := svc.ParseRequest(raw, "", "", "")
		require.NoError(t, err)
		res, err := svc.Serve(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, ProxyOutcomePassthrough, res.Outcome)
		assert.Equal(t, "public, max-age=86400", res.CacheControl)
	}
	assert.Equal(t, []string{"roster-token", ""}, tokens)
}

func redirectTo(location string) *http.Response {
	res := respond(http.StatusFound, "", nil)
	res.Header.Set("Location", location)
	return res
}

func TestProxyRedirectToSecondaryDropsToken(t *testing.T) {
	var hops []string
	svc := newTestProxyService(func(r *http.Request) (*http.Response, error) {
		hops = append(hops, r.URL.Hostname()+"|"+r.Header.Get("Access-Token"))
		if r.URL.Hostname() == "student-admin.harbour.space" {
			return redirectTo("https://bucket.fra1.digitaloceanspaces.com/p.png"), nil
		}
		return respond(http.StatusOK, "image/png", []byte("raw")), nil
	})

	req, err := svc.ParseRequest("https://student-admin.harbour.space/p.png", "", "", "")
	require.NoError(t, err)
	res, err := svc.Serve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), res.Body)
	assert.Equal(t, []string{"student-admin.harbour.space|roster-token", "bucket.fra1.digitaloceanspaces.com|"}, hops)
}

func TestProxyRedirectToForeignHostRejected(t *testing.T) {
	var hosts []string
	svc := newTestProxyService(func(r *http.Request) (*http.Response, error) {
		hosts = append(hosts, r.URL.Hostname())
		return redirectTo("https://evil.example.com/steal.png"), nil
	})

	req, err := svc.ParseRequest("https://student-admin.harbour.space/p.png", "", "", "")
	require.NoError(t, err)
	_, err = svc.Serve(context.Background(), req)
	require.ErrorIs(t, err, appErrors.ErrDomainNotAllowed)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)
	assert.Equal(t, []string{"student-admin.harbour.space"}, hosts)
}

func TestProxyKeepsCallerClientUntouched(t *testing.T) {
	client := &http.Client{}
	NewProxyService(ProxyConfig{PrimaryHost: "student-admin.harbour.space"}, client, nil, nil, nil, nil)
	assert.Nil(t, client.CheckRedirect)
}

func TestProxyResizes(t *testing.T) {
	source := pngBytes(t, 200, 100)
	svc := newTestProxyService(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, "image/png", source), nil
	})

	req, err := svc.ParseRequest("https://student-admin.harbour.space/p.png", "50", "50", "70")
	require.NoError(t, err)
	res, err := svc.Serve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, ProxyOutcomeResized, res.Outcome)
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.Equal(t, "public, max-age=31536000, immutable", res.CacheControl)
	assert.Equal(t, req.ETag(), res.ETag)

	img, _, err := image.Decode(bytes.NewReader(res.Body))
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestProxyTransformFailureReturnsOriginal(t *testing.T) {
	svc := newTestProxyService(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, "image/svg+xml", []byte("<svg/>")), nil
	})

	req, err := svc.ParseRequest("https://student-admin.harbour.space/p.svg", "100", "", "")
	require.NoError(t, err)
	res, err := svc.Serve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ProxyOutcomeFallback, res.Outcome)
	assert.Equal(t, []byte("<svg/>"), res.Body)
	assert.Equal(t, "image/svg+xml", res.ContentType)
	assert.Empty(t, res.ETag)
}

func TestProxyPropagatesUpstreamStatus(t *testing.T) {
	svc := newTestProxyService(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusNotFound, "text/plain", []byte("missing")), nil
	})

	req, err := svc.ParseRequest("https://student-admin.harbour.space/p.png", "", "", "")
	require.NoError(t, err)
	_, err = svc.Serve(context.Background(), req)
	require.ErrorIs(t, err, appErrors.ErrUpstreamFetch)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestProxyNetworkErrorIsGeneric(t *testing.T) {
	svc := newTestProxyService(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp 10.0.0.1:443: connection refused")
	})

	req, err := svc.ParseRequest("https://student-admin.harbour.space/p.png", "", "", "")
	require.NoError(t, err)
	_, err = svc.Serve(context.Background(), req)
	appErr := appErrors.FromError(err)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.False(t, strings.Contains(appErr.Message, "10.0.0.1"))
}

func TestProxyRejectsOversizedBody(t *testing.T) {
	svc := NewProxyService(ProxyConfig{PrimaryHost: "student-admin.harbour.space", MaxBytes: 4},
		&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return respond(http.StatusOK, "image/png", []byte("0123456789")), nil
		})}, nil, nil, nil, nil)

	req, err := svc.ParseRequest("https://student-admin.harbour.space/p.png", "", "", "")
	require.NoError(t, err)
	_, err = svc.Serve(context.Background(), req)
	require.ErrorIs(t, err, appErrors.ErrUpstreamFetch)
}

func TestProxyPhotoDataURL(t *testing.T) {
	source := pngBytes(t, 120, 160)
	svc := newTestProxyService(func(r *http.Request) (*http.Response, error) {
		return respond(http.StatusOK, "image/png", source), nil
	})

	dataURL, err := svc.PhotoDataURL(context.Background(), "https://student-admin.harbour.space/p.png", 60)
	require.NoError(t, err)
	raw, contentType, err := imaging.DecodeDataURL(dataURL)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	img, _, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 60, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())

	_, err = svc.PhotoDataURL(context.Background(), "https://elsewhere.org/p.png", 60)
	require.ErrorIs(t, err, appErrors.ErrDomainNotAllowed)
}
