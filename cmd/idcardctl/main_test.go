package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, body, 0o600))
	return path
}

func TestParseIDsCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ids.csv", []byte("Name,Student ID\nAna,HS-2\nBo,HS-1\n"))

	var out, errOut bytes.Buffer
	parseIDsCmd.SetOut(&out)
	parseIDsCmd.SetErr(&errOut)
	require.NoError(t, runParseIDs(parseIDsCmd, []string{path}))

	assert.Equal(t, "HS-1\nHS-2\n", out.String())
	assert.Contains(t, errOut.String(), "2 student IDs")
}

func TestParseIDsRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ids.txt", []byte("id\n1\n"))
	require.Error(t, runParseIDs(parseIDsCmd, []string{path}))
}

func TestStaffCardsCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "staff.csv", []byte("Name,Staff ID\nAna Lopez,S-1\nBo Chen,S-2\n"))
	photos := filepath.Join(dir, "photos")
	require.NoError(t, os.Mkdir(photos, 0o755))

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	writeFile(t, photos, "S-1.png", buf.Bytes())

	out := filepath.Join(dir, "cards.pdf")
	var stdout, stderr bytes.Buffer
	staffCardsCmd.SetOut(&stdout)
	staffCardsCmd.SetErr(&stderr)

	require.NoError(t, runStaffCards(staffCardsCmd, staffCardsOptions{input: input, photos: photos, out: out}))
	assert.Contains(t, stdout.String(), "wrote 1 cards")
	assert.Contains(t, stderr.String(), "Bo Chen")

	pdf, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF"))

	stdout.Reset()
	require.NoError(t, runStaffCards(staffCardsCmd, staffCardsOptions{input: input, photos: photos, out: out, allowMissing: true}))
	assert.Contains(t, stdout.String(), "wrote 2 cards")
}

func TestStaffCardsNoPhotos(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "staff.csv", []byte("Name,Staff ID\nAna Lopez,S-1\n"))
	err := runStaffCards(staffCardsCmd, staffCardsOptions{input: input, out: filepath.Join(dir, "x.pdf")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no staff members with photos")
}
