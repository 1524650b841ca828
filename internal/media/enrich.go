package media

import (
	"context"
	"fmt"
	"image"
	"os"
)

// Enrich reads the true pixel dimensions and byte size of an image record
// from disk and stores them on rec. It does nothing for other types. On
// failure rec keeps whatever fields were already written.
func Enrich(ctx context.Context, rec *Record) error {
	if rec == nil || !rec.IsImage() {
		return nil
	}
	path := rec.FullPath()

	var width, height int
	err := runWithContext(ctx, func() error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
		}
		defer f.Close()

		orientation := readOrientation(f)
		cfg, _, err := image.DecodeConfig(f)
		if err != nil {
			return fmt.Errorf("%w: decode %s: %w", ErrImageProcessing, path, err)
		}
		width, height = cfg.Width, cfg.Height
		if swapsAxes(orientation) {
			width, height = height, width
		}
		return nil
	})
	if err != nil {
		return interrupted("dimensions of "+rec.filename, err)
	}
	rec.width = width
	rec.height = height

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	rec.size = info.Size()
	return nil
}
