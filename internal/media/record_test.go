package media

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequiresPathAndFilename(t *testing.T) {
	_, err := Create("", "a.txt", "", DefaultOptions())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = Create(t.TempDir(), "", "", DefaultOptions())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateMissingFile(t *testing.T) {
	_, err := Create(t.TempDir(), "nope.txt", "", DefaultOptions())
	assert.ErrorIs(t, err, ErrIO)
}

func TestCreateSniffsContent(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, dir, "photo.jpg", 20, 10)
	writePNG(t, dir, "diagram.png", 20, 10)
	writeFile(t, dir, "notes.txt", []byte("plain old text\n"))
	writeFile(t, dir, "blob", []byte{0x00, 0x9f, 0x01, 0xfe, 0x00, 0x00, 0x13, 0x37, 0x00, 0xc3})
	// Extension lies: the content decides.
	writeFile(t, dir, "fake.jpg", []byte("definitely not a jpeg"))

	tests := []struct {
		name     string
		mimeType string
		typ      Type
	}{
		{"photo.jpg", "image/jpeg", TypeImage},
		{"diagram.png", "image/png", TypeImage},
		{"notes.txt", "text/plain", TypeText},
		{"blob", OctetStream, TypeFile},
		{"fake.jpg", "text/plain", TypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Create(dir, tt.name, "", DefaultOptions())
			require.NoError(t, err)
			assert.Equal(t, tt.mimeType, rec.MimeType())
			assert.Equal(t, tt.typ, rec.Type())
			assert.Equal(t, tt.typ == TypeImage, rec.IsImage())
			assert.Zero(t, rec.Width())
			assert.Zero(t, rec.Height())
			assert.Zero(t, rec.Size())
			assert.Nil(t, rec.Thumb())
		})
	}
}

func TestCreateNormalizesPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("a"))

	rec, err := Create(dir+string(filepath.Separator), "a.txt", "https://x/a.txt", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), rec.Path())
	assert.Equal(t, filepath.Join(dir, "a.txt"), rec.FullPath())
	assert.Equal(t, "https://x/a.txt", rec.URL())
}

func TestClassify(t *testing.T) {
	tests := map[string]Type{
		"text/plain":               TypeText,
		"text/html":                TypeText,
		"audio/mpeg":               TypeAudio,
		"video/mp4":                TypeVideo,
		"image/webp":               TypeImage,
		"IMAGE/PNG":                TypeImage,
		"application/pdf":          TypeFile,
		"application/octet-stream": TypeFile,
		"":                         TypeFile,
	}
	for in, want := range tests {
		assert.Equal(t, want, Classify(in), in)
	}
}

func TestRecordJSONOmitsOptions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("hello"))

	rec, err := Create(dir, "a.txt", "", DefaultOptions().With(map[string]any{"thumbWidth": 123}))
	require.NoError(t, err)

	data, err := json.Marshal(rec.WithURL("https://bucket/a.txt"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "a.txt", got["filename"])
	assert.Equal(t, "text/plain", got["mimeType"])
	assert.Equal(t, "text", got["type"])
	assert.Equal(t, "https://bucket/a.txt", got["url"])
	assert.NotContains(t, got, "width")
	assert.NotContains(t, got, "thumbFile")
	assert.NotContains(t, string(data), "123")
	assert.NotContains(t, string(data), "thumbWidth")
}

func TestWithURLCopies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("hello"))
	rec, err := Create(dir, "a.txt", "", DefaultOptions())
	require.NoError(t, err)

	stored := rec.WithURL("https://bucket/a.txt")
	assert.Empty(t, rec.URL())
	assert.Equal(t, "https://bucket/a.txt", stored.URL())
	assert.Equal(t, rec.Filename(), stored.Filename())
}

func TestAttachThumbnail(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("hello"))
	writePNG(t, dir, "a.png", 4, 4)

	text, err := Create(dir, "a.txt", "", DefaultOptions())
	require.NoError(t, err)
	img, err := Create(dir, "a.png", "", DefaultOptions())
	require.NoError(t, err)

	assert.ErrorIs(t, text.AttachThumbnail(img), ErrInvalidState)
	assert.Nil(t, text.Thumb())

	assert.ErrorIs(t, img.AttachThumbnail(nil), ErrInvalidState)

	require.NoError(t, img.AttachThumbnail(img.WithURL("u")))
	require.NotNil(t, img.Thumb())
	assert.Equal(t, "u", img.Thumb().URL())
}

func TestOptionsWith(t *testing.T) {
	base := DefaultOptions()
	assert.Equal(t, DefaultThumbWidth, base.ThumbWidth)

	tests := []struct {
		name      string
		overrides map[string]any
		want      int
	}{
		{"int", map[string]any{"thumbWidth": 250}, 250},
		{"json number", map[string]any{"thumbWidth": float64(100)}, 100},
		{"zero ignored", map[string]any{"thumbWidth": 0}, DefaultThumbWidth},
		{"negative ignored", map[string]any{"thumbWidth": -5}, DefaultThumbWidth},
		{"wrong type ignored", map[string]any{"thumbWidth": "250"}, DefaultThumbWidth},
		{"unknown key ignored", map[string]any{"quality": 90}, DefaultThumbWidth},
		{"nil map", nil, DefaultThumbWidth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.With(tt.overrides).ThumbWidth)
		})
	}
	assert.Equal(t, DefaultThumbWidth, base.ThumbWidth, "With must not modify the receiver")
}

func TestRecordKeepsOptionsCopy(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png", 4, 4)

	opts := DefaultOptions().With(map[string]any{"thumbWidth": 50})
	rec, err := Create(dir, "a.png", "", opts)
	require.NoError(t, err)

	opts.ThumbWidth = 999
	assert.Equal(t, 50, rec.Options().ThumbWidth)
}

func TestSniffBytes(t *testing.T) {
	assert.Equal(t, "image/png", SniffBytes([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")))
	assert.Equal(t, "application/pdf", SniffBytes([]byte("%PDF-1.7\n")))
	assert.Equal(t, "text/plain", SniffBytes([]byte("just words")))
}
