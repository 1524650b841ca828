package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	ThumbQuality  = 60
	ThumbPrefix   = "thumb-"
	ThumbMimeType = "image/jpeg"
)

// ThumbName returns the derivative file name for filename: the extension is
// always replaced with .jpg.
func ThumbName(filename string) string {
	stem := filename
	if i := strings.LastIndex(filename, "."); i >= 0 {
		stem = filename[:i]
	}
	return ThumbPrefix + stem + ".jpg"
}

// ScaledSize bounds w0 by maxWidth and scales h0 by the same factor,
// truncating. Images are never upscaled. Height is at least one pixel.
func ScaledSize(w0, h0, maxWidth int) (int, int) {
	if w0 <= 0 || h0 <= 0 {
		return 0, 0
	}
	w := w0
	if maxWidth > 0 && w > maxWidth {
		w = maxWidth
	}
	h := h0 * w / w0
	if h < 1 {
		h = 1
	}
	return w, h
}

// CreateThumbnail writes a JPEG derivative of rec into destDir and returns its
// bytes and record. Non-image records are skipped: all return values are nil.
func CreateThumbnail(ctx context.Context, rec *Record, destDir string) ([]byte, *Record, error) {
	if rec == nil || !rec.IsImage() {
		return nil, nil, nil
	}
	if destDir == "" {
		destDir = rec.path
	}

	var (
		data          []byte
		width, height int
	)
	err := runWithContext(ctx, func() error {
		img, err := decodeOriented(rec.FullPath())
		if err != nil {
			return err
		}

		b := img.Bounds()
		width, height = ScaledSize(b.Dx(), b.Dy(), rec.opts.ThumbWidth)

		thumb := img
		if width != b.Dx() || height != b.Dy() {
			thumb = imaging.Resize(img, width, height, imaging.Lanczos)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: ThumbQuality}); err != nil {
			return fmt.Errorf("%w: encode thumbnail of %s: %w", ErrImageProcessing, rec.filename, err)
		}
		data = buf.Bytes()
		return nil
	})
	if err != nil {
		return nil, nil, interrupted("thumbnail of "+rec.filename, err)
	}

	name := ThumbName(rec.filename)
	if err := os.WriteFile(filepath.Join(destDir, name), data, 0644); err != nil {
		return nil, nil, fmt.Errorf("%w: write %s: %w", ErrIO, name, err)
	}

	thumb, err := Create(destDir, name, "", rec.opts)
	if err != nil {
		return nil, nil, err
	}
	thumb.mimeType = ThumbMimeType
	thumb.typ = TypeImage
	thumb.width = width
	thumb.height = height
	thumb.size = int64(len(data))

	return data, thumb, nil
}

// decodeOriented decodes the image at path with its EXIF orientation applied.
func decodeOriented(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	defer f.Close()

	orientation := readOrientation(f)
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrImageProcessing, path, err)
	}
	return applyOrientation(img, orientation), nil
}

// runWithContext runs fn and returns its error, or ctx's error if ctx ends
// first. fn keeps running in the background in that case; codecs cannot be
// interrupted.
func runWithContext(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// interrupted tags context cancellation of a codec step as an image
// processing failure. Other errors already carry their category.
func interrupted(what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", ErrImageProcessing, what, err)
	}
	return err
}
