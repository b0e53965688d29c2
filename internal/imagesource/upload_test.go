package imagesource

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/eyescan/internal/advisory"
)

func uploadOf(mediaType string, payload []byte) UploadFile {
	return UploadFile{
		Name:      "scan",
		MediaType: mediaType,
		Size:      int64(len(payload)),
		Content:   bytes.NewReader(payload),
	}
}

func TestAcquireRejectsNonImage(t *testing.T) {
	u := NewUploader()

	for _, mediaType := range []string{"text/plain", "application/pdf", "", "video/mp4", "imagex/png"} {
		img, err := u.Acquire(context.Background(), uploadOf(mediaType, []byte("hello")))
		require.True(t, advisory.Is(err, advisory.InvalidFileType), mediaType)
		require.Empty(t, img.ID)
	}
}

func TestAcquireRejectsOversized(t *testing.T) {
	u := NewUploader()

	img, err := u.Acquire(context.Background(), uploadOf("image/jpeg", bytes.Repeat([]byte("a"), MaxUploadSize+1)))
	require.True(t, advisory.Is(err, advisory.FileTooLarge))
	require.Empty(t, img.Data)
}

func TestAcquireAcceptsExactLimit(t *testing.T) {
	u := NewUploader()

	img, err := u.Acquire(context.Background(), uploadOf("image/jpeg", bytes.Repeat([]byte("a"), MaxUploadSize)))
	require.NoError(t, err)
	require.Equal(t, MaxUploadSize, img.Size())
}

func TestTypeCheckRunsBeforeSizeCheck(t *testing.T) {
	u := NewUploader()

	err := u.Validate(UploadFile{MediaType: "text/plain", Size: MaxUploadSize * 2})
	require.True(t, advisory.Is(err, advisory.InvalidFileType))
}

func TestAcquireDetectsUnderstatedSize(t *testing.T) {
	u := NewUploader()
	file := UploadFile{
		MediaType: "image/png",
		Size:      10,
		Content:   bytes.NewReader(bytes.Repeat([]byte("a"), MaxUploadSize+10)),
	}

	_, err := u.Acquire(context.Background(), file)
	require.True(t, advisory.Is(err, advisory.FileTooLarge))
}

func TestAcquireKeepsDeclaredMediaType(t *testing.T) {
	u := NewUploader()
	payload := []byte{0xff, 0xd8, 0xff, 0xe0}

	for _, mediaType := range []string{"image/jpeg", "image/png", "image/webp", "image/gif"} {
		img, err := u.Acquire(context.Background(), uploadOf(mediaType, payload))
		require.NoError(t, err)
		require.Equal(t, mediaType, img.MediaType)
		require.Equal(t, SourceUpload, img.Source)
		require.Equal(t, payload, img.Data)
		require.True(t, strings.HasPrefix(img.DataURL(), "data:"+mediaType+";base64,"))
	}
}

func TestAcquireGivesEachImageANewID(t *testing.T) {
	u := NewUploader()

	a, err := u.Acquire(context.Background(), uploadOf("image/png", []byte("a")))
	require.NoError(t, err)
	b, err := u.Acquire(context.Background(), uploadOf("image/png", []byte("a")))
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}

func TestAcquireHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewUploader().Acquire(ctx, uploadOf("image/png", []byte("a")))
	require.ErrorIs(t, err, context.Canceled)
}

func TestDataURL(t *testing.T) {
	img := EncodedImage{MediaType: "image/png", Data: []byte("hi")}
	require.Equal(t, "data:image/png;base64,aGk=", img.DataURL())
}
