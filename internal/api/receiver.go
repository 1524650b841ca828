package api

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fruitsalade/uploader/internal/upload"
)

// FileField is the multipart form field carrying uploaded files.
const FileField = "file"

var (
	errTooManyFiles = errors.New("too many files")
	errFileTooLarge = errors.New("file too large")
	errNotMultipart = errors.New("request is not multipart/form-data")
)

// preferredExt overrides mime.ExtensionsByType for common types, whose first
// listed extension is often an unusual one (".jpe" for image/jpeg).
var preferredExt = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/bmp":       ".bmp",
	"image/tiff":      ".tiff",
	"text/plain":      ".txt",
	"text/html":       ".html",
	"text/csv":        ".csv",
	"application/pdf": ".pdf",
	"application/zip": ".zip",
	"audio/mpeg":      ".mp3",
	"video/mp4":       ".mp4",
}

// receiver stages multipart file parts on local disk.
type receiver struct {
	dir         string
	maxFiles    int
	maxFileSize int64
	now         func() time.Time
}

// receive streams every file part of r into the staging directory. Files are
// named <unix millis>-<md5 of content><ext from declared type>.
func (rc *receiver) receive(r *http.Request) ([]upload.LocalFile, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errNotMultipart, err)
	}

	var files []upload.LocalFile
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			rc.discard(files)
			return nil, fmt.Errorf("read multipart: %w", err)
		}
		if part.FormName() != FileField || part.FileName() == "" {
			part.Close()
			continue
		}
		if len(files) == rc.maxFiles {
			part.Close()
			rc.discard(files)
			return nil, fmt.Errorf("%w: at most %d per request", errTooManyFiles, rc.maxFiles)
		}

		f, err := rc.stage(part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		if err != nil {
			rc.discard(files)
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func (rc *receiver) stage(originalName, declaredType string, body io.Reader) (upload.LocalFile, error) {
	tmp, err := os.CreateTemp(rc.dir, ".upload-*.part")
	if err != nil {
		return upload.LocalFile{}, fmt.Errorf("create staging file: %w", err)
	}
	tmpName := tmp.Name()

	hash := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, hash), io.LimitReader(body, rc.maxFileSize+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return upload.LocalFile{}, fmt.Errorf("stage %s: %w", originalName, err)
	}
	if n > rc.maxFileSize {
		os.Remove(tmpName)
		return upload.LocalFile{}, fmt.Errorf("%w: %s exceeds %d bytes", errFileTooLarge, originalName, rc.maxFileSize)
	}

	name, err := rc.claimName(tmpName, hex.EncodeToString(hash.Sum(nil)), extensionFor(declaredType))
	os.Remove(tmpName)
	if err != nil {
		return upload.LocalFile{}, fmt.Errorf("stage %s: %w", originalName, err)
	}

	return upload.LocalFile{
		Dir:          rc.dir,
		Filename:     name,
		OriginalName: filepath.Base(originalName),
		DeclaredType: declaredType,
		Size:         n,
	}, nil
}

// claimName hard-links tmpName under a free staged name. Link fails when the
// target exists, so concurrent requests never overwrite each other; identical
// content staged within one millisecond gets successive timestamps.
func (rc *receiver) claimName(tmpName, hash, ext string) (string, error) {
	ts := rc.now().UnixMilli()
	for {
		name := fmt.Sprintf("%d-%s%s", ts, hash, ext)
		err := os.Link(tmpName, filepath.Join(rc.dir, name))
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
		ts++
	}
}

// discard removes files staged by a request that is being rejected.
func (rc *receiver) discard(files []upload.LocalFile) {
	for _, f := range files {
		os.Remove(f.FullPath())
	}
}

// extensionFor maps a declared MIME type to a file extension, ".bin" when
// unknown.
func extensionFor(declaredType string) string {
	mediaType, _, err := mime.ParseMediaType(declaredType)
	if err != nil {
		return ".bin"
	}
	mediaType = strings.ToLower(mediaType)
	if ext, ok := preferredExt[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
