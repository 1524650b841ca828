package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SniffLen is the number of leading bytes inspected when detecting content type.
const SniffLen = 262

// OctetStream is reported for content that matches no known signature.
const OctetStream = "application/octet-stream"

// Sniff returns the MIME type of the file at fullPath based on its leading
// bytes. Parameters such as charset are dropped. Content with no recognizable
// signature is reported as application/octet-stream.
func Sniff(fullPath string) (string, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", ErrIO, fullPath, err)
	}
	defer f.Close()

	buf := make([]byte, SniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("%w: read %s: %w", ErrIO, fullPath, err)
	}

	return SniffBytes(buf[:n]), nil
}

// SniffBytes detects the MIME type of an in-memory prefix.
func SniffBytes(prefix []byte) string {
	if len(prefix) > SniffLen {
		prefix = prefix[:SniffLen]
	}
	mt := mimetype.Detect(prefix).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	mt = strings.TrimSpace(mt)
	if mt == "" {
		return OctetStream
	}
	return mt
}
