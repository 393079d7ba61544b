package transcribe

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DataURL is a parsed RFC 2397 data URL.
type DataURL struct {
	MIME   string
	Base64 bool
	Data   []byte
}

// Len is the decoded payload size in bytes.
func (d *DataURL) Len() int { return len(d.Data) }

// IsImage reports whether the declared media type is an image type.
func (d *DataURL) IsImage() bool { return strings.HasPrefix(d.MIME, "image/") }

// ParseDataURL parses "data:[<mime>][;base64],<payload>". A base64 payload
// that fails to decode yields an empty Data rather than an error; only a
// string that is not a data URL at all is rejected.
func ParseDataURL(s string) (*DataURL, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURL)
	}
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURL)
	}

	d := &DataURL{MIME: "text/plain"}
	if strings.Contains(header, ";base64") {
		d.Base64 = true
		header = strings.Replace(header, ";base64", "", 1)
	}
	if header != "" {
		d.MIME = header
	}

	if d.Base64 {
		blob, err := base64.StdEncoding.DecodeString(payload)
		if err == nil {
			d.Data = blob
		}
		return d, nil
	}
	d.Data = []byte(payload)
	return d, nil
}
