package novaswerve

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/rdk/components/encoder"
)

// minVelocityWindow is the shortest interval a velocity estimate is taken over. Reads closer
// together than this return the previous estimate.
const minVelocityWindow = 20 * time.Millisecond

// encoderFeedback adapts an rdk encoder reporting absolute degrees into an AbsoluteEncoder.
// Velocity is estimated from position reads at least minVelocityWindow apart.
type encoderFeedback struct {
	enc encoder.Encoder
	clk clock.Clock

	mu         sync.Mutex
	primed     bool
	samplePos  float64
	sampleTime time.Time
	velocity   float64
}

func newEncoderFeedback(enc encoder.Encoder, clk clock.Clock) *encoderFeedback {
	if clk == nil {
		clk = clock.New()
	}
	return &encoderFeedback{enc: enc, clk: clk}
}

func (e *encoderFeedback) AbsolutePosition(ctx context.Context) (float64, error) {
	pos, _, err := e.enc.Position(ctx, encoder.PositionTypeDegrees, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "error reading absolute encoder (%s)", e.enc.Name().ShortName())
	}
	if math.IsNaN(pos) || math.IsInf(pos, 0) {
		return 0, errors.Errorf("absolute encoder (%s) returned non-finite position %v", e.enc.Name().ShortName(), pos)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clk.Now()
	if !e.primed {
		e.primed = true
		e.samplePos = pos
		e.sampleTime = now
		return pos, nil
	}
	if dt := now.Sub(e.sampleTime); dt >= minVelocityWindow {
		e.velocity = unwrapDegrees(pos-e.samplePos) / dt.Seconds()
		e.samplePos = pos
		e.sampleTime = now
	}
	return pos, nil
}

func (e *encoderFeedback) Velocity(ctx context.Context) (float64, error) {
	if _, err := e.AbsolutePosition(ctx); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.velocity, nil
}

// unwrapDegrees maps a position change across the 0/360 seam onto the shortest path.
func unwrapDegrees(delta float64) float64 {
	return math.Remainder(delta, 360)
}
