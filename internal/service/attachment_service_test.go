package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teamgrid/chat-api/internal/models"
)

var pngHeader = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d}

type storageStub struct {
	lastName string
	uploaded []byte
	err      error
}

func (s *storageStub) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.lastName = name
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.uploaded = data
	return "https://cdn.example.com/" + name, nil
}

func buildFileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

func TestAttachmentServiceUploadStoresImage(t *testing.T) {
	storage := &storageStub{}
	svc := NewAttachmentService(storage, 1, testLogger())

	result, err := svc.Upload(context.Background(), buildFileHeader(t, "My Diagram.PNG", pngHeader))
	require.NoError(t, err)
	require.Equal(t, models.KindImage, result.Kind)
	require.Equal(t, "my-diagram.png", result.FileName)
	require.Equal(t, int64(len(pngHeader)), result.FileSize)
	require.Equal(t, "https://cdn.example.com/my-diagram.png", result.FileURL)
	require.Equal(t, pngHeader, storage.uploaded)
}

func TestAttachmentServiceUploadRejectsOversizedFile(t *testing.T) {
	svc := NewAttachmentService(&storageStub{}, 1, testLogger())

	big := make([]byte, 2<<20)
	copy(big, pngHeader)
	_, err := svc.Upload(context.Background(), buildFileHeader(t, "huge.png", big))
	require.ErrorIs(t, err, ErrUploadTooLarge)
}

func TestAttachmentServiceUploadRejectsUnknownType(t *testing.T) {
	svc := NewAttachmentService(&storageStub{}, 1, testLogger())

	// an ELF header is never a chat attachment
	elf := []byte{0x7f, 0x45, 0x4c, 0x46, 0x02, 0x01, 0x01, 0x00}
	_, err := svc.Upload(context.Background(), buildFileHeader(t, "payload.bin", elf))
	require.ErrorIs(t, err, ErrUploadTypeNotAllowed)
}

func TestAttachmentServiceUploadPropagatesStorageFailure(t *testing.T) {
	storage := &storageStub{err: errors.New("bucket unavailable")}
	svc := NewAttachmentService(storage, 1, testLogger())

	_, err := svc.Upload(context.Background(), buildFileHeader(t, "pic.png", pngHeader))
	require.Error(t, err)
}

func TestKindForMime(t *testing.T) {
	cases := []struct {
		mime string
		kind string
		ok   bool
	}{
		{"image/png", models.KindImage, true},
		{"image/jpeg", models.KindImage, true},
		{"audio/mpeg", models.KindAudio, true},
		{"video/mp4", models.KindVideo, true},
		{"application/pdf", models.KindFile, true},
		{"text/plain; charset=utf-8", models.KindFile, true},
		{"application/x-msdownload", "", false},
	}
	for _, tc := range cases {
		kind, ok := kindForMime(tc.mime)
		require.Equal(t, tc.ok, ok, tc.mime)
		require.Equal(t, tc.kind, kind, tc.mime)
	}
}

func TestSanitizeFileName(t *testing.T) {
	require.Equal(t, "quarterly-report.pdf", sanitizeFileName("Quarterly Report.PDF"))
	require.Equal(t, "notes_v2.txt", sanitizeFileName("notes_v2.txt"))
	name := sanitizeFileName("???.png")
	require.NotEmpty(t, name)
	require.Contains(t, name, ".png")
}
