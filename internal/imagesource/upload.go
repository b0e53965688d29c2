package imagesource

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/example/eyescan/internal/advisory"
)

// MaxUploadSize is the largest accepted upload, inclusive.
const MaxUploadSize = 5 << 20

// UploadFile is a user-selected or dropped file. Size is the declared byte
// size, zero when unknown; the content is read only after validation passes
// and is capped while reading.
type UploadFile struct {
	Name      string
	MediaType string
	Size      int64
	Content   io.Reader
}

// Uploader validates files and turns them into EncodedImages. It holds no
// per-user state; the caller owns the accepted image and its preview.
type Uploader struct {
	maxSize int64
}

// NewUploader creates an upload adapter with the default size limit.
func NewUploader() *Uploader {
	return &Uploader{maxSize: MaxUploadSize}
}

// Validate runs the type and size checks, in that order, without reading content.
func (u *Uploader) Validate(file UploadFile) error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(file.MediaType)), "image/") {
		return advisory.Newf(advisory.InvalidFileType, "media type %q is not an image", file.MediaType)
	}
	if file.Size > u.maxSize {
		return advisory.Newf(advisory.FileTooLarge, "file is %d bytes, limit is %d", file.Size, u.maxSize)
	}
	return nil
}

// Acquire validates the file and reads it fully. Nothing is returned on error,
// so the caller's current image stays in place.
func (u *Uploader) Acquire(ctx context.Context, file UploadFile) (EncodedImage, error) {
	if err := u.Validate(file); err != nil {
		return EncodedImage{}, err
	}
	if file.Content == nil {
		return EncodedImage{}, fmt.Errorf("upload %q has no content", file.Name)
	}

	data, err := readAll(ctx, io.LimitReader(file.Content, u.maxSize+1))
	if err != nil {
		return EncodedImage{}, fmt.Errorf("read upload %q: %w", file.Name, err)
	}
	// The declared size may understate the real content.
	if int64(len(data)) > u.maxSize {
		return EncodedImage{}, advisory.Newf(advisory.FileTooLarge, "content exceeds %d bytes", u.maxSize)
	}

	return newEncodedImage(SourceUpload, strings.TrimSpace(file.MediaType), data), nil
}

// readAll is io.ReadAll that gives up between chunks once ctx is done.
func readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	buf := make([]byte, 0, 64<<10)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(buf) == cap(buf) {
			buf = append(buf, 0)[:len(buf)]
		}
		n, err := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
