package classifier

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/example/eyescan/internal/disease"
	"github.com/example/eyescan/internal/imagesource"
)

// SimulatedBackendName identifies the simulated strategy in config and results.
const SimulatedBackendName = "simulated"

const normalProbability = 0.3

// Simulated is a placeholder strategy that ignores the image and draws a label
// at random. Its output is NOT a diagnosis: Normal with probability 0.3 and
// confidence in [0.7, 1.0), otherwise one of the seven conditions uniformly
// with confidence in [0.6, 0.95).
type Simulated struct {
	// Delay imitates inference latency.
	Delay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated seeds the strategy from rng, or from a random seed when rng is nil.
func NewSimulated(rng *rand.Rand, delay time.Duration) *Simulated {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Simulated{Delay: delay, rng: rng}
}

var _ Backend = (*Simulated)(nil)

func (s *Simulated) Name() string { return SimulatedBackendName }

// Load has nothing to load.
func (s *Simulated) Load(ctx context.Context) (Model, error) {
	return s, ctx.Err()
}

// Predict draws one simulated result.
func (s *Simulated) Predict(ctx context.Context, img imagesource.EncodedImage) (Result, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{Simulated: true, Backend: SimulatedBackendName}
	if s.rng.Float64() < normalProbability {
		res.Disease = disease.Normal
		res.Confidence = 0.7 + s.rng.Float64()*0.3
		return res, nil
	}

	abnormal := disease.Abnormal()
	res.Disease = abnormal[s.rng.IntN(len(abnormal))]
	res.Confidence = 0.6 + s.rng.Float64()*0.35
	return res, nil
}
