package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var ErrEmptyImage = errors.New("empty image")

// DataURI wraps raw image bytes the way a canvas toDataURL call would,
// sniffing the media type from the content.
func DataURI(b []byte) string {
	mt := mimetype.Detect(b)
	return "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(b)
}

// DecodeDataURI returns the bytes of a base64 data URI. A bare base64
// string without the "data:...," prefix is accepted too. The returned MIME
// is detected from the bytes, not taken from the header.
func DecodeDataURI(s string) ([]byte, *mimetype.MIME, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil, ErrEmptyImage
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Some encoders drop the padding.
		var rawErr error
		b, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if rawErr != nil {
			return nil, nil, fmt.Errorf("decode data uri: %w", err)
		}
	}
	if len(b) == 0 {
		return nil, nil, ErrEmptyImage
	}
	return b, mimetype.Detect(b), nil
}

// IsImage reports whether mt is an image type.
func IsImage(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}
