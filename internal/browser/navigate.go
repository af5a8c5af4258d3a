package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dropwatch/dropwatch/internal/engine"
)

// LocatorKind selects how an ElementLocator resolves its value.
type LocatorKind string

// Supported locator kinds, tried in the order the chain declares them.
const (
	LocatorByRole LocatorKind = "role"
	LocatorByAttr LocatorKind = "attribute"
	LocatorByText LocatorKind = "text"
)

// ElementLocator describes one way to find a UI element. Fallback policy is
// a chain of locators, so a markup change costs a data edit, not code.
type ElementLocator struct {
	Kind  LocatorKind
	Value string
}

// LocatorsFor builds the default chain for a source's navigation entry.
func LocatorsFor(src engine.Source) []ElementLocator {
	return []ElementLocator{
		{Kind: LocatorByAttr, Value: fmt.Sprintf(`[data-list-item-id*=%q]`, src.ID)},
		{Kind: LocatorByAttr, Value: fmt.Sprintf(`a[href*=%q]`, src.ID)},
		{Kind: LocatorByText, Value: src.ID},
	}
}

// expandLocators target collapsed groupings that can hide the entry.
var expandLocators = []ElementLocator{
	{Kind: LocatorByAttr, Value: `[aria-expanded="false"]`},
	{Kind: LocatorByAttr, Value: `[class*='collapsed']`},
}

const interactiveAttempts = 3

// Navigator performs resilient in-app navigation over a Session. Failures
// degrade rung by rung; GoTo reports one final result and never panics.
type Navigator struct {
	session *Session
	logger  *zap.Logger
}

// NewNavigator wires a Navigator to its session.
func NewNavigator(session *Session, logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{session: session, logger: logger}
}

// GoTo lands the session on the source's surface. The ladder: interactive
// click with scroll and expand retries, scroll reset plus one more click,
// hard reload plus one more click, then direct address navigation. A nil
// error means the landing was verified.
func (n *Navigator) GoTo(ctx context.Context, src engine.Source) error {
	locators := LocatorsFor(src)

	rungs := []struct {
		name string
		run  func(context.Context) (bool, error)
	}{
		{"interactive", func(ctx context.Context) (bool, error) {
			return n.interactive(ctx, locators, interactiveAttempts)
		}},
		{"scroll_reset", func(ctx context.Context) (bool, error) {
			if err := n.session.scrollToTop(ctx); err != nil {
				return false, err
			}
			return n.interactive(ctx, locators, 1)
		}},
		{"hard_reload", func(ctx context.Context) (bool, error) {
			if err := n.session.Reload(ctx); err != nil {
				return false, err
			}
			return n.interactive(ctx, locators, 1)
		}},
		{"direct_address", func(ctx context.Context) (bool, error) {
			if err := n.direct(ctx, src); err != nil {
				return false, err
			}
			return true, nil
		}},
	}

	for _, rung := range rungs {
		ok, err := rung.run(ctx)
		if err != nil {
			if errors.Is(err, engine.ErrSessionLost) || ctx.Err() != nil {
				return err
			}
			n.logger.Debug("navigation rung failed",
				zap.String("source_id", src.ID),
				zap.String("rung", rung.name),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}
		if err := n.verifyLanding(ctx, src); err != nil {
			return err
		}
		n.logger.Info("navigation succeeded",
			zap.String("source_id", src.ID),
			zap.String("rung", rung.name),
		)
		return nil
	}
	return fmt.Errorf("all navigation rungs exhausted for source %s", src.ID)
}

// interactive tries to find and click the entry, scrolling the surface and
// expanding collapsed groups between attempts.
func (n *Navigator) interactive(ctx context.Context, locators []ElementLocator, attempts int) (bool, error) {
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		point, found, err := n.locate(ctx, locators)
		if err != nil {
			return false, err
		}
		if found {
			if err := n.session.clickAt(ctx, point.X, point.Y); err != nil {
				return false, err
			}
			if err := n.session.pace.Sleep(ctx, n.session.pace.ActionDelay()); err != nil {
				return false, err
			}
			return true, nil
		}

		if err := n.expandCollapsed(ctx); err != nil {
			return false, err
		}
		if err := n.session.scrollPage(ctx, n.session.pace.ScrollPlan()); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (n *Navigator) expandCollapsed(ctx context.Context) error {
	point, found, err := n.locate(ctx, expandLocators)
	if err != nil || !found {
		return err
	}
	return n.session.clickAt(ctx, point.X, point.Y)
}

func (n *Navigator) direct(ctx context.Context, src engine.Source) error {
	if err := n.session.run(ctx,
		chromedp.Navigate(src.Target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return classifyPageError(fmt.Errorf("direct navigation: %w", err))
	}
	return n.session.pace.Sleep(ctx, n.session.pace.ActionDelay())
}

// verifyLanding checks the resulting location names the source; one direct
// navigation is forced when it does not.
func (n *Navigator) verifyLanding(ctx context.Context, src engine.Source) error {
	location, err := n.location(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(location, src.ID) {
		return nil
	}

	n.logger.Debug("landing mismatch, forcing direct navigation",
		zap.String("source_id", src.ID),
		zap.String("location", location),
	)
	if err := n.direct(ctx, src); err != nil {
		return err
	}
	location, err = n.location(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(location, src.ID) {
		return fmt.Errorf("landed on %s instead of source %s", location, src.ID)
	}
	return nil
}

func (n *Navigator) location(ctx context.Context) (string, error) {
	var location string
	if err := n.session.run(ctx, chromedp.Location(&location)); err != nil {
		return "", classifyPageError(fmt.Errorf("read location: %w", err))
	}
	return location, nil
}

type pagePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// locate walks the locator chain and returns the viewport center of the
// first element any locator resolves, scrolled into view.
func (n *Navigator) locate(ctx context.Context, locators []ElementLocator) (pagePoint, bool, error) {
	for _, loc := range locators {
		expr, err := probeExpression(loc)
		if err != nil {
			n.logger.Debug("skipping malformed locator", zap.Error(err))
			continue
		}

		var point *pagePoint
		if err := n.session.run(ctx, chromedp.Evaluate(expr, &point)); err != nil {
			return pagePoint{}, false, classifyPageError(fmt.Errorf("probe locator: %w", err))
		}
		if point != nil {
			return *point, true, nil
		}
	}
	return pagePoint{}, false, nil
}

// probeExpression builds JS that resolves the locator to a viewport center,
// or null when nothing matches.
func probeExpression(loc ElementLocator) (string, error) {
	var finder string
	switch loc.Kind {
	case LocatorByRole:
		finder = fmt.Sprintf("document.querySelector('[role=%s]')", jsString(loc.Value))
	case LocatorByAttr:
		finder = fmt.Sprintf("document.querySelector(%s)", jsString(loc.Value))
	case LocatorByText:
		xpath := fmt.Sprintf("//*[contains(text(), %q)]", loc.Value)
		finder = fmt.Sprintf(
			"document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue",
			jsString(xpath),
		)
	default:
		return "", fmt.Errorf("unknown locator kind %q", loc.Kind)
	}

	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return null;
	el.scrollIntoView({block: 'center'});
	const r = el.getBoundingClientRect();
	return {x: r.x + r.width / 2, y: r.y + r.height / 2};
})()`, finder), nil
}

func jsString(s string) string {
	return fmt.Sprintf("%q", s)
}
