package ml

import (
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/franckalain/labelverdict/internal/models"
)

const defaultImageMIME = "image/jpeg"

var dataURLPrefix = regexp.MustCompile(`^data:(image/[\w.+-]+);base64,`)

// DecodeImage decodes a base64 image that may carry a data URL prefix and
// returns its bytes with the declared MIME type, if any.
func DecodeImage(encoded string) ([]byte, string, error) {
	encoded = strings.TrimSpace(encoded)
	var declared string
	if m := dataURLPrefix.FindStringSubmatch(encoded); m != nil {
		declared = m[1]
		encoded = encoded[len(m[0]):]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Some clients strip padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, "", models.NewValidationError("image is not valid base64")
		}
	}
	return data, declared, nil
}

// ImageMIME resolves the MIME type of image bytes: the declared type when it
// is an image type, otherwise whatever the bytes sniff as. Bytes that are
// clearly something else than an image are rejected.
func ImageMIME(data []byte, declared string) (string, error) {
	if strings.HasPrefix(declared, "image/") {
		return declared, nil
	}

	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return m.String(), nil
		}
	}
	if detected.Is("application/octet-stream") {
		return defaultImageMIME, nil
	}
	return "", models.NewValidationError("payload is not an image: " + detected.String())
}
