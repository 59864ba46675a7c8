package services

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/adamara/apiserver/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAttachments(objects *memObjects) *AttachmentService {
	return NewAttachmentService(objects, AttachmentLimits{}, logging.Discard())
}

func TestAttachmentLimitsDefaults(t *testing.T) {
	limits := newAttachments(newMemObjects()).Limits()

	assert.Equal(t, DefaultMaxFiles, limits.MaxFiles)
	assert.Equal(t, int64(DefaultMaxFileBytes), limits.MaxFileBytes)
	assert.Equal(t, DefaultPresignTTL, limits.PresignTTL)
}

func TestAttachmentValidate(t *testing.T) {
	svc := newAttachments(newMemObjects())

	tests := []struct {
		name    string
		uploads []Upload
		wantErr string
	}{
		{"none", nil, ""},
		{"jpeg with params", []Upload{{Filename: "a.jpg", ContentType: "image/JPEG; charset=binary", Size: 10}}, ""},
		{"png", []Upload{{Filename: "a.png", ContentType: "image/png", Size: DefaultMaxFileBytes}}, ""},
		{"text", []Upload{{Filename: "a.txt", ContentType: "text/plain", Size: 1}}, "a.txt: file type"},
		{"too large", []Upload{{Filename: "big.pdf", ContentType: "application/pdf", Size: DefaultMaxFileBytes + 1}}, "big.pdf: file exceeds the 10 MB size limit"},
		{"unknown size", []Upload{{Filename: "x.pdf", ContentType: "application/pdf", Size: -1}}, "x.pdf: file size is unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Validate(tt.uploads)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAttachmentValidate_TooMany(t *testing.T) {
	svc := newAttachments(newMemObjects())
	uploads := make([]Upload, DefaultMaxFiles+1)
	for i := range uploads {
		uploads[i] = pdfUpload("f.pdf")
	}

	err := svc.Validate(uploads)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "At most 5 files")
}

func TestAttachmentStoreAndOpen(t *testing.T) {
	objects := newMemObjects()
	svc := newAttachments(objects)
	ctx := context.Background()

	refs, err := svc.Store(ctx, []Upload{
		{Filename: "logo.png", ContentType: "image/png", Size: 3, Content: bytes.NewReader([]byte("png"))},
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)

	ref := refs[0]
	assert.True(t, strings.HasSuffix(ref.StoredName, ".png"))
	assert.Equal(t, "image/png", ref.MimeType)
	assert.Equal(t, int64(3), ref.SizeBytes)
	assert.Contains(t, objects.objects, "uploads/"+ref.StoredName)

	rc, contentType, err := svc.Open(ctx, ref.StoredName)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png", string(body))
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, svc.Delete(ctx, ref))
	require.NoError(t, svc.Delete(ctx, ref))

	_, _, err = svc.Open(ctx, ref.StoredName)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachmentStore_RollsBackOnFailure(t *testing.T) {
	objects := newMemObjects()
	objects.failPut = 3
	svc := newAttachments(objects)

	refs, err := svc.Store(context.Background(), []Upload{pdfUpload("a.pdf"), pdfUpload("b.pdf"), pdfUpload("c.pdf")})

	require.Error(t, err)
	assert.Nil(t, refs)
	assert.Zero(t, objects.count())
}

func TestAttachmentOpen_RejectsBadNames(t *testing.T) {
	svc := newAttachments(newMemObjects())

	for _, name := range []string{"", "../etc/passwd", "abc.pdf", "uploads/x.pdf"} {
		_, _, err := svc.Open(context.Background(), name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestAttachmentDownloadURL(t *testing.T) {
	objects := newMemObjects()
	svc := newAttachments(objects)
	name := "0b6f3c9e-2f5a-4d8e-9a7b-1c2d3e4f5a6b.pdf"

	_, ok, err := svc.DownloadURL(context.Background(), name)
	require.NoError(t, err)
	assert.False(t, ok)

	objects.presign = true
	url, ok, err := svc.DownloadURL(context.Background(), name)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://objects.example.com/uploads/"+name+"?ttl=15m0s", url)

	_, _, err = svc.DownloadURL(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
