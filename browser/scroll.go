package browser

import (
	"context"
	"fmt"
	"time"
)

// ScrollToBottom jumps to the document height until it stops growing or
// maxAttempts rounds have run. It returns the number of rounds.
func ScrollToBottom(ctx context.Context, s Session, pause time.Duration, maxAttempts int) (int, error) {
	last, err := s.ScrollHeight(ctx)
	if err != nil {
		return 0, err
	}

	rounds := 0
	for rounds < maxAttempts {
		if err := s.ScrollTo(ctx, last); err != nil {
			return rounds, err
		}
		rounds++
		if err := Sleep(ctx, pause); err != nil {
			return rounds, err
		}

		height, err := s.ScrollHeight(ctx)
		if err != nil {
			return rounds, err
		}
		if height == last {
			break
		}
		last = height
	}
	return rounds, nil
}

// SmoothOptions tunes SmoothScroll.
type SmoothOptions struct {
	Increment  int
	Delay      time.Duration
	StallLimit int
	// MaxSteps bounds the loop on pages that never stop growing; 0 disables it.
	MaxSteps int
}

// SmoothScroll scrolls down by a fixed increment and stops once the height
// has not changed for StallLimit consecutive steps. Any height change resets
// the stall counter. It returns the number of steps.
func SmoothScroll(ctx context.Context, s Session, opts SmoothOptions) (int, error) {
	if opts.StallLimit <= 0 {
		opts.StallLimit = 1
	}
	last, err := s.ScrollHeight(ctx)
	if err != nil {
		return 0, err
	}

	steps, stalls := 0, 0
	for stalls < opts.StallLimit {
		if opts.MaxSteps > 0 && steps >= opts.MaxSteps {
			break
		}
		if err := s.ScrollBy(ctx, opts.Increment); err != nil {
			return steps, err
		}
		steps++
		if err := Sleep(ctx, opts.Delay); err != nil {
			return steps, err
		}

		height, err := s.ScrollHeight(ctx)
		if err != nil {
			return steps, err
		}
		if height == last {
			stalls++
			continue
		}
		stalls = 0
		last = height
	}
	return steps, nil
}

// StepScroll walks the viewport from the top to the document height plus
// overshoot in fixed pixel steps, pausing after each one. Sections that only
// render when scrolled into view get a chance to load.
func StepScroll(ctx context.Context, s Session, step int, delay time.Duration, overshoot int) (int, error) {
	if step <= 0 {
		return 0, fmt.Errorf("scroll step must be positive, got %d", step)
	}
	height, err := s.ScrollHeight(ctx)
	if err != nil {
		return 0, err
	}

	steps := 0
	for y := 0; y < height+overshoot; y += step {
		if err := s.ScrollTo(ctx, y); err != nil {
			return steps, err
		}
		steps++
		if err := Sleep(ctx, delay); err != nil {
			return steps, err
		}
	}
	return steps, nil
}

// WaitForElement blocks up to timeout for loc and fails with
// ErrElementNotFound when it does not appear.
func WaitForElement(ctx context.Context, s Session, loc Locator, timeout time.Duration) (Element, error) {
	if loc.Expr == "" {
		return nil, fmt.Errorf("empty locator")
	}
	return s.WaitElement(ctx, loc, timeout)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
