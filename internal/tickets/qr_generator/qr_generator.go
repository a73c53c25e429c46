package qr

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

type QRGenerator struct {
	baseURL string
}

func NewQRGenerator(publicBaseURL string) *QRGenerator {
	return &QRGenerator{baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// VerifyURL is the public page a scanned ticket opens.
func (q *QRGenerator) VerifyURL(code string) string {
	return fmt.Sprintf("%s/verify/%s", q.baseURL, url.PathEscape(code))
}

func (q *QRGenerator) GeneratePNG(code string, size int) ([]byte, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("ticket code is required")
	}
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(q.VerifyURL(code), qrcode.Medium, size)
}
