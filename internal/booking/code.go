package booking

import (
	"crypto/rand"
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// codeAlphabet deliberately omits 0/O/1/I so codes survive being read
// over the phone or typed from a printout.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// codeLength of 10 over a 32-symbol alphabet gives 32^10 (~10^15)
// possible codes; collisions are resolved against the unique index
// rather than prevented in memory, since multiple instances may issue
// codes concurrently.
const codeLength = 10

// qrSize is the pixel width/height of the generated QR image.
const qrSize = 256

// GenerateCode returns a fresh human-presentable ticket code drawn from
// crypto/rand.  Uniqueness is only probabilistic here; the caller must
// treat a unique-index violation on insert as a signal to regenerate.
func GenerateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// EncodeQR renders the ticket code as a QR image and returns it as a
// base64-encoded PNG.  Scanning the QR yields exactly the code, so the
// check-in scanner can look the ticket up without any other context.
func EncodeQR(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrSize)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
