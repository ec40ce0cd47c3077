package publish

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/BaSui01/arpublish/codec"
)

// DefaultCodeSize 二维码默认边长
const DefaultCodeSize = 256

// GenerateCode encodes link as a PNG QR code and returns it as a data URI.
func GenerateCode(link string, size int) (string, error) {
	if link == "" {
		return "", fmt.Errorf("empty link")
	}
	if size <= 0 {
		size = DefaultCodeSize
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return codec.DataURI("image/png", png), nil
}
