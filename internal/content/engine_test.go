package content

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"contentplane/internal/store"
	"contentplane/internal/theme"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryArtifacts struct {
	mu        sync.Mutex
	artifacts []*store.Artifact
	err       error
}

func (m *memoryArtifacts) CreateArtifact(ctx context.Context, tx store.DBTransaction, a *store.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.artifacts = append(m.artifacts, a)
	return nil
}

// scriptedGenerator returns the queued responses in order and repeats the last one.
type scriptedGenerator struct {
	mu      sync.Mutex
	outputs []string
	errs    []error
	calls   int
	prompts []Prompt
}

func (g *scriptedGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	g.prompts = append(g.prompts, p)
	if i >= len(g.errs) {
		i = len(g.errs) - 1
	}
	var out string
	if i < len(g.outputs) && i >= 0 {
		out = g.outputs[i]
	}
	if i >= 0 && g.errs[i] != nil {
		return "", g.errs[i]
	}
	return out, nil
}

const validCarousel = `{"type":"carousel","title":"Calm Mornings","slides":["Hook?","Tip one","Tip two","Tip three","Follow us"],"caption":"Mornings made easier"}`

func newTestEngine(t *testing.T, gen Generator, st ArtifactWriter, retries int) *Engine {
	t.Helper()
	e := NewEngine(theme.MustLoad(), gen, st, Config{
		MaxRetries:  retries,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
		CallTimeout: time.Second,
	}, nil)
	e.now = func() time.Time { return time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC) }
	return e
}

func TestGenerate_CarouselDraft(t *testing.T) {
	st := &memoryArtifacts{}
	gen := &scriptedGenerator{outputs: []string{validCarousel}, errs: []error{nil}}
	e := newTestEngine(t, gen, st, 3)

	a, err := e.Generate(context.Background(), Request{ThemeID: "magical_monday_wisdom", Topic: "morning routines", ContentType: store.ContentTypeCarousel})
	require.NoError(t, err)

	assert.Equal(t, store.ArtifactStatusDraft, a.Status)
	assert.Equal(t, 0, a.AttemptCount)
	assert.Len(t, a.Blocks, 5)
	assert.Equal(t, "Calm Mornings", a.Title)
	assert.Contains(t, a.Hashtags, "#MondayMotivation")
	assert.Contains(t, a.Hashtags, "#MorningRoutines")
	require.Len(t, st.artifacts, 1)
	assert.Same(t, a, st.artifacts[0])
	assert.Contains(t, gen.prompts[0].User, "morning routines")
	assert.Contains(t, gen.prompts[0].User, "warm, encouraging, wise")
}

func TestGenerate_RetryBoundExhausted(t *testing.T) {
	const bound = 3
	st := &memoryArtifacts{}
	gen := &scriptedGenerator{errs: []error{&ProviderError{Kind: RateLimited, Message: "slow down"}}}
	e := newTestEngine(t, gen, st, bound)

	a, err := e.Generate(context.Background(), Request{ThemeID: "tiny_tales_tuesday", ContentType: store.ContentTypeCarousel})

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, RateLimited, pe.Kind)
	assert.Equal(t, bound+1, gen.calls)
	require.NotNil(t, a)
	assert.Equal(t, store.ArtifactStatusFailed, a.Status)
	assert.Equal(t, bound, a.AttemptCount)
	require.NotNil(t, a.FailureReason)
	assert.Equal(t, store.ReasonProviderRateLimited, *a.FailureReason)
	require.Len(t, st.artifacts, 1)
}

func TestGenerate_RecoversAfterTimeout(t *testing.T) {
	st := &memoryArtifacts{}
	gen := &scriptedGenerator{
		outputs: []string{"", "", validCarousel},
		errs:    []error{&ProviderError{Kind: Timeout, Message: "slow"}, context.DeadlineExceeded, nil},
	}
	e := newTestEngine(t, gen, st, 3)

	a, err := e.Generate(context.Background(), Request{ThemeID: "serene_sunday", ContentType: store.ContentTypeCarousel})
	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, 2, a.AttemptCount)
	assert.Equal(t, store.ArtifactStatusDraft, a.Status)
}

func TestGenerate_NonRetryableKinds(t *testing.T) {
	for _, kind := range []ProviderErrorKind{Unauthorized, InvalidResponse} {
		t.Run(string(kind), func(t *testing.T) {
			st := &memoryArtifacts{}
			gen := &scriptedGenerator{errs: []error{&ProviderError{Kind: kind, Message: "nope"}}}
			e := newTestEngine(t, gen, st, 3)

			a, err := e.Generate(context.Background(), Request{ThemeID: "fantasy_friday", ContentType: store.ContentTypeVideo})
			require.Error(t, err)
			assert.Equal(t, 1, gen.calls)
			assert.Equal(t, 0, a.AttemptCount)
			assert.Equal(t, store.ArtifactStatusFailed, a.Status)
		})
	}
}

func TestGenerate_CarouselWithFourSlidesFails(t *testing.T) {
	st := &memoryArtifacts{}
	gen := &scriptedGenerator{
		outputs: []string{`{"title":"t","slides":["a","b","c","d"]}`},
		errs:    []error{nil},
	}
	e := newTestEngine(t, gen, st, 3)

	a, err := e.Generate(context.Background(), Request{ThemeID: "wonder_wednesday", ContentType: store.ContentTypeCarousel})

	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1, gen.calls, "format errors are not retried")
	assert.Equal(t, store.ArtifactStatusFailed, a.Status)
	assert.Equal(t, store.ReasonFormatError, *a.FailureReason)
	require.Len(t, st.artifacts, 1)
	assert.NotEqual(t, store.ArtifactStatusDraft, st.artifacts[0].Status)
}

func TestGenerate_UnknownTheme(t *testing.T) {
	st := &memoryArtifacts{}
	gen := &scriptedGenerator{errs: []error{nil}}
	e := newTestEngine(t, gen, st, 3)

	a, err := e.Generate(context.Background(), Request{ThemeID: "moonday"})
	assert.Nil(t, a)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Zero(t, gen.calls)
	assert.Empty(t, st.artifacts)
}

func TestGenerate_DefaultsToThemeContentTypeAndTopic(t *testing.T) {
	st := &memoryArtifacts{}
	gen := &scriptedGenerator{
		outputs: []string{`{"type":"story","title":"Saturday","frames":["Once upon a time"]}`},
		errs:    []error{nil},
	}
	e := newTestEngine(t, gen, st, 3)

	a, err := e.Generate(context.Background(), Request{ThemeID: "story_saturday"})
	require.NoError(t, err)
	assert.Equal(t, store.ContentTypeStory, a.ContentType)
	assert.NotEmpty(t, a.Topic)
	assert.NotEmpty(t, a.Caption, "fallback caption expected")
}

func TestGenerate_PersistFailure(t *testing.T) {
	st := &memoryArtifacts{err: errors.New("db down")}
	gen := &scriptedGenerator{outputs: []string{validCarousel}, errs: []error{nil}}
	e := newTestEngine(t, gen, st, 3)

	a, err := e.Generate(context.Background(), Request{ThemeID: "magical_monday_wisdom", ContentType: store.ContentTypeCarousel})
	assert.Nil(t, a)
	assert.ErrorContains(t, err, "db down")
}

func TestGenerate_StoresFramingAndNotBefore(t *testing.T) {
	st := &memoryArtifacts{}
	gen := &scriptedGenerator{outputs: []string{validCarousel}, errs: []error{nil}}
	e := newTestEngine(t, gen, st, 0)
	friday := time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)

	a, err := e.Generate(context.Background(), Request{ThemeID: "fantasy_friday", ContentType: store.ContentTypeCarousel, NotBefore: friday})
	require.NoError(t, err)

	th, err := theme.MustLoad().ResolveByID("fantasy_friday")
	require.NoError(t, err)
	want := PickFraming(th, e.now())
	assert.Equal(t, want.Concept, a.Concept)
	assert.Equal(t, want.MagicalElement, a.MagicalElement)
	assert.Contains(t, gen.prompts[0].User, "Psychology concept: "+want.Concept)
	assert.Contains(t, gen.prompts[0].User, "Magical element: "+want.MagicalElement)
	require.NotNil(t, a.NotBefore)
	assert.Equal(t, friday, *a.NotBefore)
}

func TestPickFraming(t *testing.T) {
	th, err := theme.MustLoad().ResolveByID("wonder_wednesday")
	require.NoError(t, err)
	day := time.Date(2026, 10, 21, 8, 0, 0, 0, time.UTC)

	f := PickFraming(th, day)
	assert.Contains(t, Concepts, f.Concept)
	assert.Contains(t, MagicalElements, f.MagicalElement)
	assert.Equal(t, f, PickFraming(th, day.Add(3*time.Hour)))
	assert.NotEqual(t, f, PickFraming(th, day.AddDate(0, 0, 1)))
}
