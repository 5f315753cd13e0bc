package ocr

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Link is one live backend in a chain together with its call policy.
type Link struct {
	Backend    Backend
	Timeout    time.Duration
	MaxRetries int
	// Breaker is optional; nil never trips.
	Breaker *Breaker
}

// Outcome is the chain's answer for one image.
type Outcome struct {
	Result
	// Backend names the backend whose result was used.
	Backend string
	// Attempts counts live backend calls issued, retries included.
	Attempts int
	// Degraded is set when the terminal placeholder answered.
	Degraded bool
	// Failures lists every live failure in the order it happened.
	Failures []*BackendError
}

// Chain tries live backends in order and falls through to the placeholder.
// It is safe for concurrent use as long as its backends are.
type Chain struct {
	links    []Link
	terminal Placeholder
	backoff  time.Duration
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithBackoff sets the base wait before a retry. It doubles per retry of the
// same backend.
func WithBackoff(d time.Duration) ChainOption {
	return func(c *Chain) { c.backoff = d }
}

// WithLogger sets the chain's logger.
func WithLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// NewChain builds a chain over the given live links. An empty link list is
// valid: every image then gets placeholder text.
func NewChain(links []Link, terminal Placeholder, opts ...ChainOption) *Chain {
	c := &Chain{
		links:    links,
		terminal: terminal,
		backoff:  500 * time.Millisecond,
		logger:   slog.Default(),
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Terminal returns the chain's closing placeholder backend.
func (c *Chain) Terminal() Placeholder { return c.terminal }

// Backends returns the names of the live backends in call order.
func (c *Chain) Backends() []string {
	names := make([]string, len(c.links))
	for i, l := range c.links {
		names[i] = l.Backend.Name()
	}
	return names
}

type chainState int

const (
	stateTryBackend chainState = iota
	stateSucceeded
	stateAdvance
	stateExhausted
)

// Extract runs the chain for one image. It never fails: when no live
// backend produces text, or ctx is done, the placeholder answers.
func (c *Chain) Extract(ctx context.Context, in Input) Outcome {
	var (
		out     Outcome
		idx     int
		attempt int
		res     Result
		st      = stateTryBackend
	)
	if len(c.links) == 0 {
		st = stateExhausted
	}
	logCtx := c.logger.With("pageId", in.PageID)

	for {
		switch st {
		case stateTryBackend:
			if ctx.Err() != nil {
				st = stateExhausted
				continue
			}
			link := c.links[idx]
			name := link.Backend.Name()
			if !link.Breaker.Allow() {
				out.Failures = append(out.Failures, NewError(name, KindCircuitOpen, nil))
				logCtx.Debug("Skipping backend with open circuit.", "backend", name)
				st = stateAdvance
				continue
			}
			out.Attempts++
			r, err := c.call(ctx, link, in)
			if err == nil {
				link.Breaker.RecordSuccess()
				res = r
				st = stateSucceeded
				continue
			}
			link.Breaker.RecordFailure()
			out.Failures = append(out.Failures, err)
			// A retry cannot turn an unsupported input into a supported one.
			if err.Kind == KindUnsupported || attempt >= link.MaxRetries || ctx.Err() != nil {
				logCtx.Warn("Backend exhausted, advancing chain.", "backend", name, "attempts", attempt+1, "error", err)
				st = stateAdvance
				continue
			}
			wait := c.backoff * (1 << uint(attempt))
			logCtx.Debug("Retrying backend.", "backend", name, "attempt", attempt+1, "backoff_ms", wait.Milliseconds(), "error", err)
			if c.sleep(ctx, wait) != nil {
				st = stateExhausted
				continue
			}
			attempt++

		case stateAdvance:
			idx++
			attempt = 0
			if idx >= len(c.links) {
				st = stateExhausted
			} else {
				st = stateTryBackend
			}

		case stateSucceeded:
			out.Result = Result{RawText: res.RawText, Confidence: clamp01(res.Confidence)}
			out.Backend = c.links[idx].Backend.Name()
			return out

		case stateExhausted:
			// The placeholder ignores ctx, so a cancelled run still gets a
			// record for every image.
			r, _ := c.terminal.Extract(context.WithoutCancel(ctx), in)
			out.Result = r
			out.Backend = c.terminal.Name()
			out.Degraded = true
			return out
		}
	}
}

// call issues one bounded backend call. The wait is bounded even when the
// backend ignores its context; a late answer is discarded.
func (c *Chain) call(ctx context.Context, link Link, in Input) (Result, *BackendError) {
	name := link.Backend.Name()
	callCtx := ctx
	if link.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, link.Timeout)
		defer cancel()
	}

	type answer struct {
		r   Result
		err error
	}
	done := make(chan answer, 1)
	go func() {
		r, err := link.Backend.Extract(callCtx, in)
		done <- answer{r, err}
	}()

	var a answer
	select {
	case a = <-done:
	case <-callCtx.Done():
		a.err = callCtx.Err()
	}
	if a.err != nil {
		return Result{}, classify(name, a.err)
	}
	if strings.TrimSpace(a.r.RawText) == "" {
		return Result{}, NewError(name, KindEmpty, nil)
	}
	return a.r, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
