// Package upload pushes staged files to the object store and assembles the
// record returned to the client: original plus, for images, a thumbnail.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/uploader/internal/config"
	"github.com/fruitsalade/uploader/internal/events"
	"github.com/fruitsalade/uploader/internal/logging"
	"github.com/fruitsalade/uploader/internal/media"
	"github.com/fruitsalade/uploader/internal/metrics"
	"github.com/fruitsalade/uploader/internal/storage"
)

// SourceMetadataKey is the object metadata entry holding the JSON descriptor
// of what was uploaded.
const SourceMetadataKey = "_source"

// LocalFile describes a file staged on local disk by the multipart receiver.
type LocalFile struct {
	Dir          string `json:"path"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName,omitempty"`
	DeclaredType string `json:"declaredMimeType,omitempty"`
	Size         int64  `json:"size,omitempty"`
}

// FullPath returns the location of the staged file.
func (f LocalFile) FullPath() string {
	return filepath.Join(f.Dir, f.Filename)
}

// Service runs the upload pipeline. It holds its own copy of the pipeline
// configuration; services built from different configurations can run
// concurrently without affecting each other.
type Service struct {
	backend        storage.Backend
	cfg            config.Service
	opts           media.Options
	storeTimeout   time.Duration
	processTimeout time.Duration
	broadcaster    *events.Broadcaster
}

// NewService creates a Service storing into backend.
func NewService(backend storage.Backend, cfg config.Service) *Service {
	return &Service{
		backend: backend,
		cfg:     cfg,
		opts:    cfg.MediaOptions(),
	}
}

// SetTimeouts bounds each object store call and each image decode/encode.
// Zero disables the bound.
func (s *Service) SetTimeouts(store, process time.Duration) {
	s.storeTimeout = store
	s.processTimeout = process
}

// SetBroadcaster publishes an event for every stored object.
func (s *Service) SetBroadcaster(b *events.Broadcaster) {
	s.broadcaster = b
}

// Config returns the configuration the service was built with.
func (s *Service) Config() config.Service {
	return s.cfg
}

// ProcessUpload runs the pipeline for the first file of batch. Remaining
// files are ignored; use ProcessBatch to handle all of them.
func (s *Service) ProcessUpload(ctx context.Context, batch []LocalFile) (*media.Record, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: empty upload batch", media.ErrValidation)
	}
	if len(batch) > 1 {
		logging.WithContext(ctx).Debug("processing first file of batch only",
			zap.Int("batch_size", len(batch)))
	}
	return s.Process(ctx, batch[0])
}

// ProcessBatch runs the pipeline for every file in order. The first failure
// aborts the batch; files already stored stay stored.
func (s *Service) ProcessBatch(ctx context.Context, batch []LocalFile) ([]*media.Record, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: empty upload batch", media.ErrValidation)
	}

	records := make([]*media.Record, 0, len(batch))
	for i, f := range batch {
		rec, err := s.Process(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("file %d (%s): %w", i, f.OriginalName, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Process uploads f and, when it is an image, generates and uploads its
// thumbnail, nests the thumbnail record and fills in the image dimensions.
func (s *Service) Process(ctx context.Context, f LocalFile) (*media.Record, error) {
	log := logging.WithContext(ctx)

	rec, err := s.Upload(ctx, f)
	if err != nil {
		return nil, err
	}
	if !rec.IsImage() {
		return rec, nil
	}

	pctx, cancel := s.processContext(ctx)
	start := time.Now()
	_, thumb, err := media.CreateThumbnail(pctx, rec, s.cfg.UploadDir)
	cancel()
	metrics.RecordThumbnail(time.Since(start), err == nil)
	if err != nil {
		log.Warn("thumbnail generation failed", zap.String("file", rec.Filename()), zap.Error(err))
		return nil, err
	}

	stored, err := s.put(ctx, thumb, thumb, events.EventThumbnail)
	if err != nil {
		return nil, err
	}
	if err := rec.AttachThumbnail(stored); err != nil {
		return nil, err
	}

	pctx, cancel = s.processContext(ctx)
	defer cancel()
	if err := media.Enrich(pctx, rec); err != nil {
		return nil, err
	}

	log.Info("image processed",
		zap.String("file", rec.Filename()),
		zap.Int("width", rec.Width()),
		zap.Int("height", rec.Height()),
		zap.String("thumb", stored.Filename()),
		zap.Int("thumb_width", stored.Width()),
		zap.Int("thumb_height", stored.Height()))

	return rec, nil
}

// Upload pushes f to the object store under its file name and returns its
// record with the public URL set.
func (s *Service) Upload(ctx context.Context, f LocalFile) (*media.Record, error) {
	rec, err := media.Create(f.Dir, f.Filename, "", s.opts)
	if err != nil {
		return nil, err
	}
	return s.put(ctx, rec, f, events.EventUpload)
}

// put reads rec's file, stores it with source as the descriptor metadata and
// returns a copy of rec carrying the public URL.
func (s *Service) put(ctx context.Context, rec *media.Record, source any, eventType string) (*media.Record, error) {
	key := rec.Filename()

	data, err := os.ReadFile(rec.FullPath())
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", media.ErrIO, rec.FullPath(), err)
	}

	descriptor, err := sourceDescriptor(source)
	if err != nil {
		return nil, fmt.Errorf("%w: encode descriptor of %s: %w", media.ErrValidation, key, err)
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	err = s.backend.PutObject(sctx, key, bytes.NewReader(data), int64(len(data)), rec.MimeType(),
		map[string]string{SourceMetadataKey: descriptor})
	metrics.RecordUpload(string(rec.Type()), int64(len(data)), err == nil)
	if err != nil {
		logging.WithContext(ctx).Error("object store put failed",
			zap.String("key", key),
			zap.String("backend", s.backend.Type()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: put %s: %w", media.ErrStorage, key, err)
	}

	stored := rec.WithURL(s.backend.PublicURL(key))

	logging.WithContext(ctx).Debug("object stored",
		zap.String("key", key),
		zap.String("mime_type", stored.MimeType()),
		zap.Int("size", len(data)))

	if s.broadcaster != nil {
		s.broadcaster.Publish(events.Event{
			Type:      eventType,
			Key:       key,
			URL:       stored.URL(),
			MimeType:  stored.MimeType(),
			FileType:  string(stored.Type()),
			Size:      int64(len(data)),
			RequestID: logging.GetRequestID(ctx),
		})
	}

	return stored, nil
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout > 0 {
		return context.WithTimeout(ctx, s.storeTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) processContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.processTimeout > 0 {
		return context.WithTimeout(ctx, s.processTimeout)
	}
	return context.WithCancel(ctx)
}
