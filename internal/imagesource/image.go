package imagesource

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source names the adapter that produced an image.
type Source string

const (
	SourceUpload Source = "upload"
	SourceCamera Source = "camera"
)

// EncodedImage is an in-memory image payload tagged with its media type. ID is
// unique per acquisition and is used to tell a fresh image from a stale one.
type EncodedImage struct {
	ID         string
	MediaType  string
	Data       []byte
	Source     Source
	AcquiredAt time.Time
}

func newEncodedImage(source Source, mediaType string, data []byte) EncodedImage {
	return EncodedImage{
		ID:         uuid.NewString(),
		MediaType:  mediaType,
		Data:       data,
		Source:     source,
		AcquiredAt: time.Now().UTC(),
	}
}

// DataURL renders the image as a self-describing data URL.
func (img EncodedImage) DataURL() string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(img.MediaType) + base64.StdEncoding.EncodedLen(len(img.Data)))
	b.WriteString("data:")
	b.WriteString(img.MediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(img.Data))
	return b.String()
}

// Size returns the payload length in bytes.
func (img EncodedImage) Size() int {
	return len(img.Data)
}

