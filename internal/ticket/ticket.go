package ticket

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yeqown/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

var ErrEmptyPayload = errors.New("empty qr payload")

// Ticket is what an attendee receives after registering.
type Ticket struct {
	Token     string
	CodeImage string
}

// Issuer produces tokens and their scannable images. It never touches storage.
type Issuer interface {
	Issue() (Ticket, error)
}

type issuer struct {
	newToken func() string
	render   func(string) (string, error)
}

func NewIssuer() Issuer {
	return &issuer{newToken: NewToken, render: RenderQR}
}

func (i *issuer) Issue() (Ticket, error) {
	token := i.newToken()
	img, err := i.render(token)
	if err != nil {
		return Ticket{}, fmt.Errorf("render ticket code: %w", err)
	}
	return Ticket{Token: token, CodeImage: img}, nil
}

// NewToken returns a random version 4 UUID.
func NewToken() string {
	return uuid.NewString()
}

// RenderQR encodes text as a PNG QR code and returns it as a data URL.
func RenderQR(text string) (string, error) {
	png, err := RenderPNG(text)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

func RenderPNG(text string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyPayload
	}
	qrc, err := qrcode.New(text, qrcode.WithBuiltinImageEncoder(qrcode.PNG_FORMAT))
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	var buf bytes.Buffer
	if err := qrc.SaveTo(&buf); err != nil {
		return nil, fmt.Errorf("write qr image: %w", err)
	}
	return buf.Bytes(), nil
}

// PNGFromDataURL strips the data URL header and returns the raw image bytes.
func PNGFromDataURL(dataURL string) ([]byte, error) {
	raw := dataURL
	if strings.HasPrefix(dataURL, "data:") {
		if i := strings.IndexByte(dataURL, ','); i >= 0 {
			raw = dataURL[i+1:]
		}
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}
	return b, nil
}
