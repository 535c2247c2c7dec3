package content

import (
	"errors"
	"testing"

	"contentplane/internal/store"
	"contentplane/internal/theme"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		contentType store.ContentType
		raw         string
		wantBlocks  int
		wantErr     bool
	}{
		{"carousel ok", store.ContentTypeCarousel, validCarousel, 5, false},
		{"carousel fenced", store.ContentTypeCarousel, "```json\n" + validCarousel + "\n```", 5, false},
		{"carousel six slides", store.ContentTypeCarousel, `{"slides":["a","b","c","d","e","f"]}`, 0, true},
		{"carousel blank slide", store.ContentTypeCarousel, `{"slides":["a","b"," ","d","e"]}`, 0, true},
		{"video ok", store.ContentTypeVideo, `{"hook":"h","body":"b","call_to_action":"c"}`, 3, false},
		{"video missing cta", store.ContentTypeVideo, `{"hook":"h","body":"b"}`, 0, true},
		{"story one frame", store.ContentTypeStory, `{"frames":["f"]}`, 1, false},
		{"story four frames", store.ContentTypeStory, `{"frames":["a","b","c","d"]}`, 0, true},
		{"story no frames", store.ContentTypeStory, `{"frames":[]}`, 0, true},
		{"tag mismatch", store.ContentTypeVideo, validCarousel, 0, true},
		{"not json", store.ContentTypeCarousel, "Here are five slides...", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.contentType, tt.raw)
			if tt.wantErr {
				var fe *FormatError
				require.True(t, errors.As(err, &fe), "expected FormatError, got %v", err)
				assert.Equal(t, tt.contentType, fe.ContentType)
				return
			}
			require.NoError(t, err)
			assert.Len(t, p.Blocks, tt.wantBlocks)
		})
	}
}

func TestParse_VideoBlockOrder(t *testing.T) {
	p, err := Parse(store.ContentTypeVideo, `{"hook":"h","body":"b","call_to_action":"c"}`)
	require.NoError(t, err)
	assert.Equal(t, []store.Block{
		{Kind: store.BlockHook, Text: "h"},
		{Kind: store.BlockBody, Text: "b"},
		{Kind: store.BlockCTA, Text: "c"},
	}, p.Blocks)
}

func TestHashtags(t *testing.T) {
	th := theme.MustLoad().Resolve(3) // Wednesday

	tags := Hashtags(th, "screen time balance", store.ContentTypeVideo)
	assert.LessOrEqual(t, len(tags), MaxHashtags)
	assert.Contains(t, tags, "#ParentingReel")
	assert.Contains(t, tags, "#WonderWednesday")
	assert.Contains(t, tags, "#ScreenTimeBalance")
	assert.Contains(t, tags, "#ScreenTimeBalanceTips")

	carouselTags := Hashtags(th, "screen time balance", store.ContentTypeCarousel)
	assert.NotContains(t, carouselTags, "#ParentingReel")
}

func TestHashtags_Capped(t *testing.T) {
	th := theme.Theme{ID: "x"}
	for i := 0; i < 40; i++ {
		th.Hashtags = append(th.Hashtags, "#tag"+string(rune('a'+i%26))+string(rune('a'+i/26)))
	}
	tags := Hashtags(th, "topic", store.ContentTypeCarousel)
	assert.Len(t, tags, MaxHashtags)
}

func TestProviderErrorRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&ProviderError{Kind: RateLimited}))
	assert.True(t, IsRetryable(&ProviderError{Kind: Timeout}))
	assert.False(t, IsRetryable(&ProviderError{Kind: Unauthorized}))
	assert.False(t, IsRetryable(&ProviderError{Kind: InvalidResponse}))
	assert.False(t, IsRetryable(&FormatError{}))
}
