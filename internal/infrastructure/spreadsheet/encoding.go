package spreadsheet

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeText converts a text upload to UTF-8. A UTF-8 or UTF-16 BOM wins; otherwise valid
// UTF-8 is kept as is and anything else is read as Latin-1.
func decodeText(data []byte) ([]byte, string, error) {
	if hasBOM(data) {
		decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return nil, "", err
		}
		return decoded, "bom", nil
	}

	if utf8.Valid(data) {
		return data, "utf-8", nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return nil, "", err
	}
	return decoded, "latin-1", nil
}

func hasBOM(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) ||
		bytes.HasPrefix(data, []byte{0xFF, 0xFE}) ||
		bytes.HasPrefix(data, []byte{0xFE, 0xFF})
}
