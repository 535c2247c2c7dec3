package content

import (
	"time"

	"contentplane/internal/theme"
)

// Concepts are the child psychology ideas content is anchored in.
var Concepts = []string{
	"attachment theory",
	"positive reinforcement",
	"emotional regulation",
	"growth mindset",
	"active listening",
	"boundary setting",
	"emotional intelligence",
	"resilience building",
	"empathy development",
	"self-esteem nurturing",
	"stress management",
	"mindful parenting",
	"play therapy",
	"cognitive development",
	"social learning theory",
}

// MagicalElements are the storytelling devices content is wrapped in.
var MagicalElements = []string{
	"enchanted forest wisdom",
	"fairy tale lessons",
	"dragon courage",
	"unicorn compassion",
	"wizard patience",
	"magic mirror reflection",
	"crystal ball insight",
	"phoenix resilience",
	"owl wisdom",
	"butterfly transformation",
	"star guidance",
	"moon serenity",
	"magic carpet adventures",
	"talking animals",
	"enchanted objects",
}

// Framing is the concept and magical element one artifact is written around.
type Framing struct {
	Concept        string
	MagicalElement string
}

// PickFraming chooses a framing deterministically for a theme and day.
// The two banks advance at different strides so pairs keep changing.
func PickFraming(t theme.Theme, day time.Time) Framing {
	n := day.YearDay() + int(t.Weekday)
	return Framing{
		Concept:        Concepts[n%len(Concepts)],
		MagicalElement: MagicalElements[(n*4+day.Year())%len(MagicalElements)],
	}
}
