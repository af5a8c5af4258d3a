package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/dropwatch/dropwatch/internal/pacing"
)

// moveMouseAlong replays a generated pointer path through the CDP input
// domain, honoring the per-waypoint pauses baked into the path.
func (s *Session) moveMouseAlong(ctx context.Context, path []pacing.PathPoint) error {
	for _, p := range path {
		if err := s.run(ctx,
			chromedp.MouseEvent(input.MouseMoved, p.X, p.Y),
		); err != nil {
			return fmt.Errorf("dispatch mouse move: %w", err)
		}
		if p.Pause > 0 {
			if err := s.pace.Sleep(ctx, p.Pause); err != nil {
				return err
			}
		}
	}
	return nil
}

// clickAt moves to the point along a humanized path and clicks, with jitter
// on the final position and a held button press.
func (s *Session) clickAt(ctx context.Context, x, y float64) error {
	if path := s.pace.MousePath(s.viewportW, s.viewportH); path != nil {
		if err := s.moveMouseAlong(ctx, path); err != nil {
			return err
		}
	}

	dx, dy := s.pace.ClickJitter()
	x += dx
	y += dy
	if x < 1 {
		x = 1
	}
	if y < 1 {
		y = 1
	}

	if err := s.run(ctx,
		chromedp.MouseEvent(input.MouseMoved, x, y),
	); err != nil {
		return fmt.Errorf("dispatch mouse move: %w", err)
	}
	if err := s.pace.Sleep(ctx, s.pace.PressDuration()); err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.MouseClickXY(x, y)); err != nil {
		return fmt.Errorf("dispatch click: %w", err)
	}
	return nil
}

// typeText sends the text through the keyboard domain one rune at a time
// with short pauses, the way a person types.
func (s *Session) typeText(ctx context.Context, text string) error {
	for _, r := range text {
		if err := s.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("dispatch key event: %w", err)
		}
		if err := s.pace.Sleep(ctx, s.pace.MicroDelay()); err != nil {
			return err
		}
	}
	return nil
}

// scrollPage plays a momentum scroll plan via window.scrollBy.
func (s *Session) scrollPage(ctx context.Context, plan []pacing.ScrollStep) error {
	for _, step := range plan {
		if err := s.run(ctx,
			chromedp.Evaluate(scrollByExpression(step.DeltaY), nil),
		); err != nil {
			return fmt.Errorf("scroll page: %w", err)
		}
		if step.Pause > 0 {
			if err := s.pace.Sleep(ctx, step.Pause); err != nil {
				return err
			}
		}
	}
	return nil
}

// scrollByExpression builds the scroll step script. Deltas are fractional
// pixels from the momentum model.
func scrollByExpression(deltaY float64) string {
	return fmt.Sprintf("window.scrollBy(0, %.1f)", deltaY)
}

// scrollToTop resets the page scroll position without animation.
func (s *Session) scrollToTop(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Evaluate("window.scrollTo(0, 0)", nil)); err != nil {
		return fmt.Errorf("scroll to top: %w", err)
	}
	return nil
}

// scrollToBottom jumps to the end of the page, where lazily rendered lists
// materialize their newest items.
func (s *Session) scrollToBottom(ctx context.Context) error {
	if err := s.run(ctx,
		chromedp.Evaluate("window.scrollTo(0, document.documentElement.scrollHeight)", nil),
	); err != nil {
		return fmt.Errorf("scroll to bottom: %w", err)
	}
	return nil
}

// contentHeight measures the document height, used to scale reading pauses.
func (s *Session) contentHeight(ctx context.Context) (int, error) {
	var height int
	if err := s.run(ctx,
		chromedp.Evaluate("document.documentElement.scrollHeight", &height),
	); err != nil {
		return 0, fmt.Errorf("measure content height: %w", err)
	}
	return height, nil
}
