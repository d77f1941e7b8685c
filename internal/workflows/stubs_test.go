package workflows

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

const promptPrefix = "prompt for "

func conceptOf(prompt string) string {
	return strings.TrimPrefix(prompt, promptPrefix)
}

// activeTracker records the number of concurrently active jobs and the maximum seen
type activeTracker struct {
	mu     sync.Mutex
	active int
	max    int
}

func (t *activeTracker) enter() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active++
	if t.active > t.max {
		t.max = t.active
	}
}

func (t *activeTracker) leave() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active--
}

func (t *activeTracker) maxActive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.max
}

type stubSource struct {
	concepts []string
	err      error
	calls    atomic.Int32
}

func (s *stubSource) Extract(ctx context.Context, text string) ([]string, error) {
	s.calls.Add(1)
	return s.concepts, s.err
}

type stubEnricher struct {
	prompts map[string]string
	tracker *activeTracker
	calls   atomic.Int32
}

func (e *stubEnricher) Enrich(ctx context.Context, concept string) string {
	e.calls.Add(1)
	e.tracker.enter()
	if p, ok := e.prompts[concept]; ok {
		return p
	}
	return promptPrefix + concept
}

type stubSynthesizer struct {
	mu     sync.Mutex
	seeds  map[string]int64
	count  map[string]int
	runIDs map[string]string

	fail    map[string]bool
	empty   map[string]bool
	panics  map[string]bool
	extra   bool
	delay   func(concept string) time.Duration
	blockOn map[string]bool
	onCall  func(concept string)

	calls atomic.Int32
}

func (s *stubSynthesizer) Generate(ctx context.Context, prompt string, seed int64, count int) ([]string, error) {
	s.calls.Add(1)
	concept := conceptOf(prompt)

	s.mu.Lock()
	if s.seeds == nil {
		s.seeds = make(map[string]int64)
		s.count = make(map[string]int)
		s.runIDs = make(map[string]string)
	}
	s.seeds[concept] = seed
	s.count[concept] = count
	s.runIDs[concept] = pipeline.RunIDFrom(ctx)
	s.mu.Unlock()

	if s.onCall != nil {
		s.onCall(concept)
	}
	if s.delay != nil {
		select {
		case <-time.After(s.delay(concept)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.blockOn[concept] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.panics[concept] {
		panic("synthesizer exploded")
	}
	if s.fail[concept] {
		return nil, errors.New("bedrock unavailable")
	}
	if s.empty[concept] {
		return []string{}, nil
	}

	refs := []string{"img_" + concept}
	if s.extra {
		refs = append(refs, "img_"+concept+"_extra")
	}
	return refs, nil
}

func (s *stubSynthesizer) seedFor(concept string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeds[concept]
}

type stubAnimator struct {
	mu        sync.Mutex
	hints     []string
	completed []string

	unsuccessful map[string]bool
	fail         map[string]bool
	tracker      *activeTracker
	onDone       func(concept string)

	calls atomic.Int32
}

func (a *stubAnimator) Animate(ctx context.Context, imageRef, prompt string, seed int64, filenameHint string) (string, bool, error) {
	a.calls.Add(1)
	defer a.tracker.leave()
	concept := conceptOf(prompt)

	a.mu.Lock()
	a.hints = append(a.hints, filenameHint)
	a.completed = append(a.completed, concept)
	a.mu.Unlock()

	if a.onDone != nil {
		defer a.onDone(concept)
	}
	if a.fail[concept] {
		return "", false, errors.New("connection refused")
	}
	if a.unsuccessful[concept] {
		return "", false, nil
	}
	return "anim_" + imageRef, true, nil
}

func (a *stubAnimator) completionOrder() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.completed...)
}
