package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teamgrid/chat-api/internal/dto"
	"github.com/teamgrid/chat-api/internal/models"
	"github.com/teamgrid/chat-api/internal/observability"
)

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the MIME type is not permitted.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
)

// FileStorage abstracts attachment upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// AttachmentService validates and stores message attachments. The returned
// metadata is meant to be echoed back in a later sendMessage payload.
type AttachmentService interface {
	Upload(ctx context.Context, file *multipart.FileHeader) (dto.AttachmentResponse, error)
}

type attachmentService struct {
	storage FileStorage
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewAttachmentService constructs an attachment service.
func NewAttachmentService(storage FileStorage, maxSizeMB int, logger zerolog.Logger) AttachmentService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &attachmentService{
		storage: storage,
		logger:  logger.With().Str("component", "attachment_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/teamgrid/chat-api/internal/service/attachment"),
	}
}

func (s *attachmentService) Upload(ctx context.Context, file *multipart.FileHeader) (dto.AttachmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "attachment.store")
	defer span.End()

	span.SetAttributes(attribute.Int64("attachment.max_bytes", s.maxSize))
	if file != nil {
		span.SetAttributes(
			attribute.String("attachment.original_name", strings.TrimSpace(file.Filename)),
			attribute.Int64("attachment.request_size", file.Size),
		)
	}

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if file == nil {
		err := errors.New("file is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.AttachmentResponse{}, err
	}

	if file.Size > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.AttachmentResponse{}, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return dto.AttachmentResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return dto.AttachmentResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		observability.UploadRejected().WithLabelValues("size").Inc()
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.AttachmentResponse{}, ErrUploadTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	kind, ok := kindForMime(detected.String())
	span.SetAttributes(attribute.String("attachment.detected_mime", detected.String()))
	if !ok {
		observability.UploadRejected().WithLabelValues("type").Inc()
		span.RecordError(ErrUploadTypeNotAllowed)
		span.SetStatus(codes.Error, "type not allowed")
		return dto.AttachmentResponse{}, ErrUploadTypeNotAllowed
	}

	sanitizedName := sanitizeFileName(file.Filename)
	span.SetAttributes(
		attribute.String("attachment.sanitized_name", sanitizedName),
		attribute.Int64("attachment.size_bytes", int64(buf.Len())),
		attribute.String("attachment.kind", kind),
	)

	url, err := s.storage.Upload(ctx, sanitizedName, bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.UploadRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.AttachmentResponse{}, err
	}

	span.SetStatus(codes.Ok, "stored")

	return dto.AttachmentResponse{
		FileName: sanitizedName,
		FileURL:  url,
		FileSize: int64(buf.Len()),
		Kind:     kind,
	}, nil
}

// kindForMime maps a detected MIME type onto a message kind. Unknown types
// are rejected rather than stored as opaque blobs.
func kindForMime(mime string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(mime))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	switch {
	case strings.HasPrefix(lower, "image/"):
		return models.KindImage, true
	case strings.HasPrefix(lower, "audio/"):
		return models.KindAudio, true
	case strings.HasPrefix(lower, "video/"):
		return models.KindVideo, true
	}
	switch lower {
	case "application/pdf", "application/zip", "application/x-zip-compressed", "text/plain":
		return models.KindFile, true
	default:
		return "", false
	}
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("attachment-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}
