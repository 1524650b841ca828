package media

import (
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// readOrientation returns the EXIF orientation (1..8) of the image in r and
// rewinds r. Images without EXIF data report 1.
func readOrientation(r io.ReadSeeker) int {
	orientation := 1
	if x, err := exif.Decode(r); err == nil {
		if tag, err := x.Get(exif.Orientation); err == nil {
			if v, err := tag.Int(0); err == nil && v >= 1 && v <= 8 {
				orientation = v
			}
		}
	}
	r.Seek(0, io.SeekStart)
	return orientation
}

// swapsAxes reports whether applying orientation exchanges width and height.
func swapsAxes(orientation int) bool {
	return orientation >= 5 && orientation <= 8
}

// applyOrientation transforms an image according to EXIF orientation value.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
