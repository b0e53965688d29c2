package usecase

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/eyescan/internal/advisory"
	"github.com/example/eyescan/internal/classifier"
	"github.com/example/eyescan/internal/imagesource"
	"github.com/example/eyescan/internal/render"
)

// State is the orchestrator state of one session.
type State string

const (
	StateEmpty         State = "empty"
	StateImageSelected State = "image_selected"
	StateProcessing    State = "processing"
	StateResultReady   State = "result_ready"
)

// SourceMode is the source selector shown to the user. It does not affect
// which adapters may be used.
type SourceMode string

const (
	ModeUpload SourceMode = "upload"
	ModeCamera SourceMode = "camera"
)

// ParseMode accepts "upload" or "camera". Empty means upload.
func ParseMode(value string) (SourceMode, error) {
	switch SourceMode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeUpload:
		return ModeUpload, nil
	case ModeCamera:
		return ModeCamera, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, value)
	}
}

// ImageInfo describes the current image without its bytes.
type ImageInfo struct {
	ID         string             `json:"id"`
	MediaType  string             `json:"media_type"`
	Size       int                `json:"size"`
	Source     imagesource.Source `json:"source"`
	AcquiredAt time.Time          `json:"acquired_at"`
}

// AdvisoryView is the last advisory raised for a session.
type AdvisoryView struct {
	Kind        advisory.Kind `json:"kind"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
}

// Snapshot is a consistent copy of a session.
type Snapshot struct {
	ID         string                 `json:"id"`
	Mode       SourceMode             `json:"mode"`
	State      State                  `json:"state"`
	Processing bool                   `json:"processing"`
	Image      *ImageInfo             `json:"image,omitempty"`
	Result     *classifier.Result     `json:"result,omitempty"`
	Display    *render.DisplayPayload `json:"display,omitempty"`
	Advisory   *AdvisoryView          `json:"advisory,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Session holds the state for one user. All fields are guarded by mu.
type Session struct {
	id string

	mu         sync.Mutex
	mode       SourceMode
	state      State
	image      *imagesource.EncodedImage
	processing bool
	inflightID string
	result     *classifier.Result
	advisory   *advisory.Error
	createdAt  time.Time
	updatedAt  time.Time
}

func newSession(id string, mode SourceMode) *Session {
	now := time.Now().UTC()
	return &Session{
		id:        id,
		mode:      mode,
		state:     StateEmpty,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) setMode(mode SourceMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.touchLocked()
}

// selectImage replaces the current image. Any displayed result is dropped;
// an in-flight call keeps the processing flag until it returns.
func (s *Session) selectImage(img imagesource.EncodedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = &img
	s.result = nil
	s.advisory = nil
	s.state = StateImageSelected
	s.touchLocked()
}

// beginAnalyze moves to Processing and returns the image to classify.
func (s *Session) beginAnalyze() (imagesource.EncodedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing {
		return imagesource.EncodedImage{}, ErrAnalysisInProgress
	}
	if s.image == nil {
		adv := advisory.New(advisory.NoImageSelected, nil)
		s.advisory = adv
		return imagesource.EncodedImage{}, adv
	}

	s.processing = true
	s.inflightID = s.image.ID
	s.result = nil
	s.advisory = nil
	s.state = StateProcessing
	s.touchLocked()
	return *s.image, nil
}

// selectAndBegin installs a captured frame and moves straight to Processing
// under one lock. The frame is dropped when a call is already in flight.
func (s *Session) selectAndBegin(img imagesource.EncodedImage) (imagesource.EncodedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing {
		return imagesource.EncodedImage{}, ErrAnalysisInProgress
	}

	s.image = &img
	s.processing = true
	s.inflightID = img.ID
	s.result = nil
	s.advisory = nil
	s.state = StateProcessing
	s.touchLocked()
	return img, nil
}

// finishAnalyze records the outcome of the call started for imageID. It
// reports false when the session has moved on to another image, in which
// case the outcome is dropped.
func (s *Session) finishAnalyze(imageID string, res classifier.Result, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflightID == imageID {
		s.processing = false
		s.inflightID = ""
	}
	s.touchLocked()

	if s.image == nil || s.image.ID != imageID {
		return false
	}

	if err != nil {
		s.state = StateImageSelected
		s.advisory = asAdvisory(err)
		return true
	}
	s.result = &res
	s.state = StateResultReady
	return true
}

func (s *Session) recordAdvisory(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advisory = asAdvisory(err)
	s.touchLocked()
}

func (s *Session) currentImage() (imagesource.EncodedImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.image == nil {
		return imagesource.EncodedImage{}, false
	}
	return *s.image, true
}

func (s *Session) currentResult() (classifier.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateResultReady || s.result == nil {
		return classifier.Result{}, false
	}
	return *s.result, true
}

func (s *Session) isProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		Mode:       s.mode,
		State:      s.state,
		Processing: s.processing,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
	if s.image != nil {
		snap.Image = &ImageInfo{
			ID:         s.image.ID,
			MediaType:  s.image.MediaType,
			Size:       s.image.Size(),
			Source:     s.image.Source,
			AcquiredAt: s.image.AcquiredAt,
		}
	}
	if s.state == StateResultReady && s.result != nil {
		res := *s.result
		display := render.Render(res)
		snap.Result = &res
		snap.Display = &display
	}
	if s.advisory != nil {
		snap.Advisory = &AdvisoryView{
			Kind:        s.advisory.Kind,
			Title:       s.advisory.Title,
			Description: s.advisory.Description,
		}
	}
	return snap
}

func (s *Session) touchLocked() {
	s.updatedAt = time.Now().UTC()
}

func asAdvisory(err error) *advisory.Error {
	var adv *advisory.Error
	if errors.As(err, &adv) {
		return adv
	}
	return advisory.New(advisory.ClassificationFailed, err)
}
