package onnxmodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/example/eyescan/internal/disease"
)

// Metadata describes the exported network.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	// OutputProbabilities is set when the graph ends in a softmax already.
	OutputProbabilities bool `json:"output_probabilities"`

	labels []disease.ID
}

// Labels returns the class labels in output order.
func (m Metadata) Labels() []disease.ID {
	return append([]disease.ID(nil), m.labels...)
}

// LoadMetadata reads and validates a metadata file.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}
	return ParseMetadata(raw)
}

// ParseMetadata decodes metadata and maps every class onto a known disease.
func ParseMetadata(raw []byte) (Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if meta.ImageSize <= 0 {
		return Metadata{}, errors.New("metadata image_size must be positive")
	}
	if len(meta.InputShape) != 4 {
		return Metadata{}, fmt.Errorf("metadata input_shape must be NCHW, got %v", meta.InputShape)
	}
	if meta.InputShape[1] != 3 || meta.InputShape[2] != int64(meta.ImageSize) || meta.InputShape[3] != int64(meta.ImageSize) {
		return Metadata{}, fmt.Errorf("metadata input_shape %v does not match 3x%dx%d", meta.InputShape, meta.ImageSize, meta.ImageSize)
	}
	if len(meta.Classes) == 0 {
		return Metadata{}, errors.New("metadata lists no classes")
	}
	if n := elements(meta.OutputShape); n != int64(len(meta.Classes)) {
		return Metadata{}, fmt.Errorf("metadata output_shape %v holds %d values for %d classes", meta.OutputShape, n, len(meta.Classes))
	}

	meta.labels = make([]disease.ID, 0, len(meta.Classes))
	for _, class := range meta.Classes {
		id, err := disease.ParseID(class)
		if err != nil {
			return Metadata{}, fmt.Errorf("metadata class: %w", err)
		}
		meta.labels = append(meta.labels, id)
	}
	return meta, nil
}

func elements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
