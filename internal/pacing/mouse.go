package pacing

import (
	"math"
	"time"
)

// PathPoint is one step of a simulated pointer movement.
type PathPoint struct {
	X     float64
	Y     float64
	Pause time.Duration
}

// MousePath plans a multi-segment pointer movement across a viewport of the
// given size: 2-5 waypoints, interpolated with per-step jitter and a speed
// profile that is fastest mid-segment. The caller replays the points against
// the page.
func (m *Model) MousePath(width, height int) []PathPoint {
	if width < 200 || height < 200 {
		return nil
	}
	startX := float64(50 + m.intn(width-100))
	startY := float64(50 + m.intn(height-100))

	segments := 2 + m.intn(4)
	var path []PathPoint
	for s := 0; s < segments; s++ {
		targetX := float64(100 + m.intn(width-200))
		targetY := float64(100 + m.intn(height-200))

		dx := targetX - startX
		dy := targetY - startY
		distance := dx*dx + dy*dy
		steps := 5
		if n := int(math.Sqrt(distance) / 50); n > steps {
			steps = n
		}

		for i := 0; i < steps; i++ {
			t := float64(i) / float64(steps)
			jitterX := (m.float() - 0.5) * 30
			jitterY := (m.float() - 0.5) * 30
			// Faster in the middle of a stroke, slower near the ends.
			speed := 1 - math.Abs(t-0.5)*0.5
			path = append(path, PathPoint{
				X:     startX + dx*t + jitterX,
				Y:     startY + dy*t + jitterY,
				Pause: time.Duration(float64(10*time.Millisecond) / speed),
			})
		}
		path = append(path, PathPoint{
			X:     targetX,
			Y:     targetY,
			Pause: m.Delay(200*time.Millisecond, 600*time.Millisecond),
		})
		startX, startY = targetX, targetY
	}
	return path
}

// ClickJitter offsets a click position the way a human fingertip lands: a
// small Gaussian nudge around the intended point.
func (m *Model) ClickJitter() (dx, dy float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.NormFloat64() * 3, m.rng.NormFloat64() * 3
}

// PressDuration is how long the button stays down during a click.
func (m *Model) PressDuration() time.Duration {
	return m.Delay(50*time.Millisecond, 150*time.Millisecond)
}
