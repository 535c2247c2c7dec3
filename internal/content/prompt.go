package content

import (
	"fmt"
	"strings"

	"contentplane/internal/store"
	"contentplane/internal/theme"
)

const systemPrompt = `You write social media content for a parenting blog. ` +
	`Audience: parents of children aged 3 to 10. Be warm and practical. ` +
	`Reply with a single JSON object and nothing else.`

// BuildPrompt renders the prompt for a theme, topic, content type and framing.
func BuildPrompt(t theme.Theme, topic string, contentType store.ContentType, f Framing) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Theme: %s\n", t.DisplayName)
	if len(t.Tone) > 0 {
		fmt.Fprintf(&b, "Tone: %s\n", strings.Join(t.Tone, ", "))
	}
	if f.Concept != "" {
		fmt.Fprintf(&b, "Psychology concept: %s\n", f.Concept)
	}
	if f.MagicalElement != "" {
		fmt.Fprintf(&b, "Magical element: %s\n", f.MagicalElement)
	}
	fmt.Fprintf(&b, "Topic: %s\n\n", topic)

	switch contentType {
	case store.ContentTypeCarousel:
		b.WriteString("Create a 5-slide carousel. Slide 1 is a hook, slides 2-4 are practical tips, " +
			"slide 5 is a call to action. Each slide is one or two sentences.\n")
		b.WriteString(`Return: {"type":"carousel","title":"...","slides":["...","...","...","...","..."],"caption":"..."}`)
	case store.ContentTypeVideo:
		b.WriteString("Write a 60 to 90 second video script with a hook, a body carrying the teaching moment, " +
			"and a call to action.\n")
		b.WriteString(`Return: {"type":"video","title":"...","hook":"...","body":"...","call_to_action":"...","caption":"..."}`)
	case store.ContentTypeStory:
		b.WriteString("Write a short story sequence of 1 to 3 frames, one sentence each.\n")
		b.WriteString(`Return: {"type":"story","title":"...","frames":["..."],"caption":"..."}`)
	}

	return Prompt{System: systemPrompt, User: b.String()}
}

// fallbackCaption is used when the provider returns no caption.
func fallbackCaption(contentType store.ContentType, topic string) string {
	if contentType == store.ContentTypeVideo {
		return fmt.Sprintf("Quick parenting tip for %s. What's your experience? Comment below!", topic)
	}
	return fmt.Sprintf("Parenting wisdom for %s. Every challenge is an opportunity to grow. Share yours below!", topic)
}
