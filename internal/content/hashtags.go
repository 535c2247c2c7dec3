package content

import (
	"strings"
	"unicode"

	"contentplane/internal/store"
	"contentplane/internal/theme"
)

// MaxHashtags is the platform limit per post.
const MaxHashtags = 25

var baseHashtags = []string{
	"#MagicalParenting", "#ParentingWisdom", "#ParentingTips",
	"#ChildPsychology", "#ParentingSupport", "#BedtimeStories",
	"#ParentingCommunity", "#RaisingKids", "#ParentingAdvice",
}

var videoHashtags = []string{"#ParentingVideo", "#InstagramVideo", "#ParentingReel"}

// Hashtags builds the deduplicated tag list for an artifact, capped at MaxHashtags.
func Hashtags(t theme.Theme, topic string, contentType store.ContentType) []string {
	tags := make([]string, 0, MaxHashtags)
	seen := make(map[string]bool)
	add := func(tag string) {
		key := strings.ToLower(tag)
		if tag == "#" || seen[key] || len(tags) >= MaxHashtags {
			return
		}
		seen[key] = true
		tags = append(tags, tag)
	}

	for _, tag := range baseHashtags {
		add(tag)
	}
	if contentType == store.ContentTypeVideo {
		for _, tag := range videoHashtags {
			add(tag)
		}
	}
	for _, tag := range t.Hashtags {
		add(tag)
	}
	if topicTag := topicHashtag(topic); topicTag != "" {
		add(topicTag)
		add(topicTag + "Tips")
	}
	return tags
}

// topicHashtag turns "picky eating" into "#PickyEating".
func topicHashtag(topic string) string {
	var b strings.Builder
	for _, word := range strings.FieldsFunc(topic, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		runes := []rune(word)
		b.WriteRune(unicode.ToUpper(runes[0]))
		b.WriteString(string(runes[1:]))
	}
	if b.Len() == 0 {
		return ""
	}
	return "#" + b.String()
}
