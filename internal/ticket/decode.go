package ticket

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

var (
	ErrNoCode     = errors.New("no readable qr code")
	ErrBadPicture = errors.New("unreadable image")
)

// QRDecoder finds a QR code in a picture and returns its text.
type QRDecoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

func NewQRDecoder() *QRDecoder {
	return &QRDecoder{hints: map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}}
}

func (d *QRDecoder) Decode(img image.Image) (string, error) {
	if img == nil {
		return "", ErrBadPicture
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadPicture, err)
	}
	// a new reader per call; QRCodeReader keeps decoder state
	res, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return res.GetText(), nil
}

func (d *QRDecoder) DecodeBytes(b []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadPicture, err)
	}
	return d.Decode(img)
}

// DecodeDataURL accepts either a data URL or bare base64 image content.
func (d *QRDecoder) DecodeDataURL(dataURL string) (string, error) {
	b, err := PNGFromDataURL(dataURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadPicture, err)
	}
	return d.DecodeBytes(b)
}
