package browser

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type fakeSession struct {
	height     func(call int) int
	calls      int
	scrolledTo []int
	scrolledBy []int
}

func fixedHeights(values ...int) func(int) int {
	return func(call int) int {
		if call >= len(values) {
			return values[len(values)-1]
		}
		return values[call]
	}
}

func (f *fakeSession) Navigate(context.Context, string) error { return nil }

func (f *fakeSession) WaitElement(context.Context, Locator, time.Duration) (Element, error) {
	return nil, ErrElementNotFound
}

func (f *fakeSession) Find(context.Context, Locator) (Element, error) {
	return nil, ErrElementNotFound
}

func (f *fakeSession) FindAll(context.Context, Locator) ([]Element, error) { return nil, nil }

func (f *fakeSession) ScrollHeight(context.Context) (int, error) {
	h := f.height(f.calls)
	f.calls++
	return h, nil
}

func (f *fakeSession) ScrollTo(_ context.Context, y int) error {
	f.scrolledTo = append(f.scrolledTo, y)
	return nil
}

func (f *fakeSession) ScrollBy(_ context.Context, dy int) error {
	f.scrolledBy = append(f.scrolledBy, dy)
	return nil
}

func (f *fakeSession) Close() error { return nil }

func TestScrollToBottom(t *testing.T) {
	tests := []struct {
		name        string
		height      func(int) int
		maxAttempts int
		wantRounds  int
	}{
		{name: "static page stops after one round", height: fixedHeights(1200), maxAttempts: 10, wantRounds: 1},
		{name: "stops when growth ends", height: fixedHeights(1000, 2000, 3000, 3000), maxAttempts: 10, wantRounds: 3},
		{name: "endless growth bounded by attempts", height: func(call int) int { return (call + 1) * 1000 }, maxAttempts: 4, wantRounds: 4},
		{name: "zero attempts", height: fixedHeights(1000), maxAttempts: 0, wantRounds: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{height: tt.height}
			rounds, err := ScrollToBottom(context.Background(), s, 0, tt.maxAttempts)
			if err != nil {
				t.Fatalf("scroll: %v", err)
			}
			if rounds != tt.wantRounds {
				t.Fatalf("rounds = %d, want %d", rounds, tt.wantRounds)
			}
			if len(s.scrolledTo) != rounds {
				t.Fatalf("scroll calls = %d, want %d", len(s.scrolledTo), rounds)
			}
		})
	}
}

func TestSmoothScroll(t *testing.T) {
	tests := []struct {
		name      string
		height    func(int) int
		opts      SmoothOptions
		wantSteps int
	}{
		{
			name:      "static page stalls out",
			height:    fixedHeights(800),
			opts:      SmoothOptions{Increment: 300, StallLimit: 5},
			wantSteps: 5,
		},
		{
			name:      "height change resets stall counter",
			height:    fixedHeights(100, 200, 200, 300, 300),
			opts:      SmoothOptions{Increment: 300, StallLimit: 2},
			wantSteps: 5,
		},
		{
			name:      "max steps caps endless growth",
			height:    func(call int) int { return call * 300 },
			opts:      SmoothOptions{Increment: 300, StallLimit: 5, MaxSteps: 25},
			wantSteps: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeSession{height: tt.height}
			steps, err := SmoothScroll(context.Background(), s, tt.opts)
			if err != nil {
				t.Fatalf("scroll: %v", err)
			}
			if steps != tt.wantSteps {
				t.Fatalf("steps = %d, want %d", steps, tt.wantSteps)
			}
			for _, dy := range s.scrolledBy {
				if dy != tt.opts.Increment {
					t.Fatalf("scrolled by %d, want %d", dy, tt.opts.Increment)
				}
			}
		})
	}
}

func TestStepScroll(t *testing.T) {
	s := &fakeSession{height: fixedHeights(100)}
	steps, err := StepScroll(context.Background(), s, 60, 0, 300)
	if err != nil {
		t.Fatalf("scroll: %v", err)
	}
	want := []int{0, 60, 120, 180, 240, 300, 360}
	if steps != len(want) || !reflect.DeepEqual(s.scrolledTo, want) {
		t.Fatalf("positions = %v (steps %d), want %v", s.scrolledTo, steps, want)
	}

	if _, err := StepScroll(context.Background(), s, 0, 0, 0); err == nil {
		t.Fatalf("expected error for zero step")
	}
}

func TestScrollStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &fakeSession{height: func(call int) int { return (call + 1) * 1000 }}
	if _, err := ScrollToBottom(ctx, s, time.Hour, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWaitForElementRejectsEmptyLocator(t *testing.T) {
	if _, err := WaitForElement(context.Background(), &fakeSession{}, Locator{}, time.Second); err == nil {
		t.Fatalf("expected error for empty locator")
	}
}
