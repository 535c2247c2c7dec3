// Package theme holds the immutable weekly theme catalog.
package theme

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"contentplane/internal/store"

	"gopkg.in/yaml.v3"
)

//go:embed themes.yaml
var defaultCatalog []byte

// Window is a preferred posting window [StartHour, EndHour) in local time.
type Window struct {
	StartHour int `yaml:"start_hour" json:"start_hour"`
	EndHour   int `yaml:"end_hour" json:"end_hour"`
}

// Contains reports whether the hour falls inside the window.
func (w Window) Contains(hour int) bool {
	return hour >= w.StartHour && hour < w.EndHour
}

// Theme is the editorial theme of one weekday.
type Theme struct {
	Weekday        time.Weekday
	ID             string
	DisplayName    string
	Tone           []string
	ContentType    store.ContentType
	Window         Window
	Hashtags       []string
	FallbackTopics []string
}

type catalogFile struct {
	Themes []struct {
		Weekday        string   `yaml:"weekday"`
		ID             string   `yaml:"id"`
		DisplayName    string   `yaml:"display_name"`
		Tone           []string `yaml:"tone"`
		ContentType    string   `yaml:"content_type"`
		Window         Window   `yaml:"window"`
		Hashtags       []string `yaml:"hashtags"`
		FallbackTopics []string `yaml:"fallback_topics"`
	} `yaml:"themes"`
}

// Registry resolves themes by weekday or id. It is read-only after construction.
type Registry struct {
	byDay [7]Theme
	byID  map[string]Theme
}

// Load parses the embedded catalog.
func Load() (*Registry, error) {
	return Parse(defaultCatalog)
}

// MustLoad is Load for process start-up, where a broken embedded catalog is fatal.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

// Parse builds a registry from a YAML catalog. The catalog must cover all
// seven weekdays exactly once.
func Parse(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse theme catalog: %w", err)
	}
	if len(file.Themes) != 7 {
		return nil, fmt.Errorf("theme catalog must define 7 themes, got %d", len(file.Themes))
	}

	r := &Registry{byID: make(map[string]Theme, 7)}
	var seen [7]bool
	for _, t := range file.Themes {
		day, err := parseWeekday(t.Weekday)
		if err != nil {
			return nil, err
		}
		if seen[day] {
			return nil, fmt.Errorf("weekday %s defined twice", day)
		}
		if t.ID == "" {
			return nil, fmt.Errorf("theme for %s has no id", day)
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("theme id %q defined twice", t.ID)
		}
		if t.Window.StartHour < 0 || t.Window.EndHour > 24 || t.Window.StartHour >= t.Window.EndHour {
			return nil, fmt.Errorf("theme %q has invalid window %d-%d", t.ID, t.Window.StartHour, t.Window.EndHour)
		}
		ct := store.ContentType(t.ContentType)
		if ct == "" {
			ct = store.ContentTypeCarousel
		}
		if !ct.Valid() {
			return nil, fmt.Errorf("theme %q has unknown content type %q", t.ID, t.ContentType)
		}

		th := Theme{
			Weekday:        day,
			ID:             t.ID,
			DisplayName:    t.DisplayName,
			Tone:           t.Tone,
			ContentType:    ct,
			Window:         t.Window,
			Hashtags:       t.Hashtags,
			FallbackTopics: t.FallbackTopics,
		}
		seen[day] = true
		r.byDay[day] = th
		r.byID[th.ID] = th
	}
	return r, nil
}

// Resolve returns the theme of a weekday. Every weekday has one.
func (r *Registry) Resolve(day time.Weekday) Theme {
	return r.byDay[day]
}

// ResolveByID returns the theme with the given id.
func (r *Registry) ResolveByID(id string) (Theme, error) {
	t, ok := r.byID[id]
	if !ok {
		return Theme{}, &store.NotFoundError{Entity: "theme", ID: id}
	}
	return t, nil
}

// All returns the catalog ordered Monday through Sunday.
func (r *Registry) All() []Theme {
	out := make([]Theme, 0, 7)
	for _, day := range Week {
		out = append(out, r.byDay[day])
	}
	return out
}

// Week lists weekdays Monday first.
var Week = [7]time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

var errUnknownWeekday = errors.New("unknown weekday")

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", errUnknownWeekday, s)
}
