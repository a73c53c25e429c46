package qr

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyURL(t *testing.T) {
	q := NewQRGenerator("https://rifa.example.com/")
	assert.Equal(t, "https://rifa.example.com/verify/GA-20250309-AB12", q.VerifyURL("GA-20250309-AB12"))
}

func TestGeneratePNG(t *testing.T) {
	q := NewQRGenerator("https://rifa.example.com")

	data, err := q.GeneratePNG("GA-20250309-AB12", 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, img.Bounds().Dx())

	_, err = q.GeneratePNG(" ", 128)
	assert.Error(t, err)
}
