// Package media classifies uploaded files by content and derives thumbnails
// for images.
package media

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Type is the coarse category of a file, taken from the primary component of
// its MIME type.
type Type string

const (
	TypeText  Type = "text"
	TypeAudio Type = "audio"
	TypeVideo Type = "video"
	TypeImage Type = "image"
	TypeFile  Type = "file"
)

// Classify maps a MIME type to its coarse Type.
func Classify(mimeType string) Type {
	primary, _, _ := strings.Cut(mimeType, "/")
	switch t := Type(strings.ToLower(strings.TrimSpace(primary))); t {
	case TypeText, TypeAudio, TypeVideo, TypeImage:
		return t
	default:
		return TypeFile
	}
}

// Record is the metadata of one stored file and, for images, its thumbnail.
//
// MIME type and type are always derived from the file content. Width, height,
// size and the thumbnail are only ever set on image records, by Enrich,
// CreateThumbnail and AttachThumbnail.
type Record struct {
	path     string
	filename string
	mimeType string
	typ      Type
	url      string

	width  int
	height int
	size   int64
	thumb  *Record

	opts Options
}

// Create builds a Record for the file dir/filename. The content type is
// sniffed from disk; url may be empty for files not yet stored remotely.
func Create(dir, filename, url string, opts Options) (*Record, error) {
	if dir == "" || filename == "" {
		return nil, fmt.Errorf("%w: path and filename are required", ErrValidation)
	}

	dir = filepath.Clean(dir)
	mimeType, err := Sniff(filepath.Join(dir, filename))
	if err != nil {
		return nil, err
	}

	return &Record{
		path:     dir,
		filename: filename,
		mimeType: mimeType,
		typ:      Classify(mimeType),
		url:      url,
		opts:     opts,
	}, nil
}

func (r *Record) Path() string     { return r.path }
func (r *Record) Filename() string { return r.filename }
func (r *Record) MimeType() string { return r.mimeType }
func (r *Record) Type() Type       { return r.typ }
func (r *Record) URL() string      { return r.url }
func (r *Record) Width() int       { return r.width }
func (r *Record) Height() int      { return r.height }
func (r *Record) Size() int64      { return r.size }
func (r *Record) Thumb() *Record   { return r.thumb }
func (r *Record) Options() Options { return r.opts }

// FullPath returns the location of the file on local disk.
func (r *Record) FullPath() string {
	return filepath.Join(r.path, r.filename)
}

// IsImage reports whether the record was classified as an image.
func (r *Record) IsImage() bool {
	return r.typ == TypeImage
}

// WithURL returns a copy of r pointing at url.
func (r *Record) WithURL(url string) *Record {
	c := *r
	c.url = url
	return &c
}

// AttachThumbnail nests thumb inside r. Only image records carry thumbnails.
func (r *Record) AttachThumbnail(thumb *Record) error {
	if !r.IsImage() {
		return fmt.Errorf("%w: %s is %s, not an image", ErrInvalidState, r.filename, r.typ)
	}
	if thumb == nil {
		return fmt.Errorf("%w: nil thumbnail for %s", ErrInvalidState, r.filename)
	}
	r.thumb = thumb
	return nil
}

type recordJSON struct {
	Path      string      `json:"path"`
	Filename  string      `json:"filename"`
	MimeType  string      `json:"mimeType"`
	Type      Type        `json:"type"`
	URL       string      `json:"url,omitempty"`
	Width     int         `json:"width,omitempty"`
	Height    int         `json:"height,omitempty"`
	Size      int64       `json:"size,omitempty"`
	ThumbFile *recordJSON `json:"thumbFile,omitempty"`
}

func (r *Record) wire() *recordJSON {
	if r == nil {
		return nil
	}
	return &recordJSON{
		Path:      r.path,
		Filename:  r.filename,
		MimeType:  r.mimeType,
		Type:      r.typ,
		URL:       r.url,
		Width:     r.width,
		Height:    r.height,
		Size:      r.size,
		ThumbFile: r.thumb.wire(),
	}
}

// MarshalJSON emits the public fields only; Options stay internal.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}
