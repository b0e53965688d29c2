package camera

import (
	"context"

	"github.com/example/eyescan/internal/imagesource"
)

// Disabled is used when capture is switched off in configuration.
type Disabled struct{}

func (Disabled) HasCamera(ctx context.Context) (bool, error) { return false, nil }

func (Disabled) Open(ctx context.Context, opts imagesource.StreamOptions) (imagesource.Stream, error) {
	return nil, imagesource.ErrNoDevice
}
