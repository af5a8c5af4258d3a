package pacing

import "time"

// ScrollStep is one wheel tick of a simulated scroll: a pixel delta (negative
// scrolls up) followed by a pause.
type ScrollStep struct {
	DeltaY float64
	Pause  time.Duration
}

// ScrollPlan simulates momentum scrolling: 2-5 gestures, each broken into
// decelerating sub-steps, direction weighted 70% downward, with an occasional
// backtrack like a reader re-checking something above.
func (m *Model) ScrollPlan() []ScrollStep {
	gestures := 2 + m.intn(4)
	var plan []ScrollStep
	for g := 0; g < gestures; g++ {
		var total float64
		if m.float() < 0.7 {
			total = float64(150 + m.intn(451))
		} else {
			total = -float64(100 + m.intn(301))
		}

		momentum := 3 + m.intn(6)
		for step := 0; step < momentum; step++ {
			decel := (1 - float64(step)/float64(momentum)) / float64(momentum)
			plan = append(plan, ScrollStep{
				DeltaY: total * decel,
				Pause:  m.uniform(20*time.Millisecond, 80*time.Millisecond),
			})
		}
		plan = append(plan, ScrollStep{Pause: m.Delay(400*time.Millisecond, 1200*time.Millisecond)})

		if m.float() < 0.25 {
			plan = append(plan, ScrollStep{
				DeltaY: -float64(50 + m.intn(51)),
				Pause:  m.Delay(300*time.Millisecond, 700*time.Millisecond),
			})
		}
	}
	return plan
}
