package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"contentplane/internal/store"
)

const (
	carouselSlides = 5
	maxStoryFrames = 3
)

// Parsed is generated content validated against its content type.
type Parsed struct {
	Title   string
	Blocks  []store.Block
	Caption string
}

type rawOutput struct {
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Slides       []string `json:"slides"`
	Hook         string   `json:"hook"`
	Body         string   `json:"body"`
	CallToAction string   `json:"call_to_action"`
	Frames       []string `json:"frames"`
	Caption      string   `json:"caption"`
}

// Parse decodes raw provider output as the variant named by contentType.
// Any structural mismatch is a *FormatError.
func Parse(contentType store.ContentType, raw string) (*Parsed, error) {
	fail := func(format string, args ...interface{}) error {
		return &FormatError{ContentType: contentType, Reason: fmt.Sprintf(format, args...)}
	}

	var out rawOutput
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &out); err != nil {
		return nil, fail("output is not a JSON object: %v", err)
	}
	if out.Type != "" && store.ContentType(out.Type) != contentType {
		return nil, fail("output tagged %q", out.Type)
	}

	p := &Parsed{
		Title:   strings.TrimSpace(out.Title),
		Caption: strings.TrimSpace(out.Caption),
	}

	switch contentType {
	case store.ContentTypeCarousel:
		if len(out.Slides) != carouselSlides {
			return nil, fail("expected %d slides, got %d", carouselSlides, len(out.Slides))
		}
		for i, s := range out.Slides {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil, fail("slide %d is empty", i+1)
			}
			p.Blocks = append(p.Blocks, store.Block{Kind: store.BlockSlide, Text: s})
		}

	case store.ContentTypeVideo:
		sections := []struct {
			kind store.BlockKind
			name string
			text string
		}{
			{store.BlockHook, "hook", out.Hook},
			{store.BlockBody, "body", out.Body},
			{store.BlockCTA, "call_to_action", out.CallToAction},
		}
		for _, sec := range sections {
			text := strings.TrimSpace(sec.text)
			if text == "" {
				return nil, fail("missing %s", sec.name)
			}
			p.Blocks = append(p.Blocks, store.Block{Kind: sec.kind, Text: text})
		}

	case store.ContentTypeStory:
		if len(out.Frames) == 0 || len(out.Frames) > maxStoryFrames {
			return nil, fail("expected 1 to %d frames, got %d", maxStoryFrames, len(out.Frames))
		}
		for i, f := range out.Frames {
			f = strings.TrimSpace(f)
			if f == "" {
				return nil, fail("frame %d is empty", i+1)
			}
			p.Blocks = append(p.Blocks, store.Block{Kind: store.BlockFrame, Text: f})
		}

	default:
		return nil, fail("unknown content type")
	}

	return p, nil
}

// stripCodeFence removes a surrounding ```json fence some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
