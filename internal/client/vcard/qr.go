package vcard

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// DefaultQRSize is the edge length in pixels of a rendered QR code.
const DefaultQRSize = 512

// QRCode renders payload as a square PNG QR code with medium error
// correction.
func QRCode(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	code, err := qr.Encode(payload, qr.M, qr.Unicode)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	scaled, err := barcode.Scale(code, size, size)
	if err != nil {
		return nil, fmt.Errorf("scale qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("write qr png: %w", err)
	}
	return buf.Bytes(), nil
}
