package upload

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/fruitsalade/uploader/internal/media"
)

const (
	// maxDescriptorLen keeps the descriptor well inside the 2 KB S3 allows
	// for all user metadata.
	maxDescriptorLen = 1536

	// maxOriginalNameRunes bounds the client file name kept in a descriptor.
	maxOriginalNameRunes = 64
)

// sourceDescriptor encodes source as ASCII-only JSON no longer than
// maxDescriptorLen. Object metadata travels as HTTP headers, so non-ASCII is
// written as \u escapes. An oversized client file name is shortened, then
// dropped if the descriptor still does not fit.
func sourceDescriptor(source any) (string, error) {
	if f, ok := source.(LocalFile); ok {
		f.OriginalName = shortenName(f.OriginalName, maxOriginalNameRunes)
		d, err := encodeASCII(f)
		if err != nil || len(d) <= maxDescriptorLen {
			return d, err
		}
		f.OriginalName = ""
		source = f
	}

	d, err := encodeASCII(source)
	if err != nil {
		return "", err
	}
	if len(d) > maxDescriptorLen {
		return "", fmt.Errorf("%w: descriptor is %d bytes, limit %d", media.ErrValidation, len(d), maxDescriptorLen)
	}
	return d, nil
}

func encodeASCII(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		raw = raw[size:]
		switch {
		case r < utf8.RuneSelf:
			b.WriteByte(byte(r))
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String(), nil
}

// shortenName cuts name to at most limit runes, keeping a short extension.
func shortenName(name string, limit int) string {
	if utf8.RuneCountInString(name) <= limit {
		return name
	}
	ext := filepath.Ext(name)
	if n := utf8.RuneCountInString(ext); n == 0 || n > limit/4 {
		ext = ""
	}
	stem := []rune(strings.TrimSuffix(name, ext))
	return string(stem[:limit-utf8.RuneCountInString(ext)]) + ext
}
