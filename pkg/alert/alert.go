package alert

import (
	"context"
	"errors"
	"fmt"
)

// EventType classifies what a notification is about.
type EventType string

const (
	EventRankChange       EventType = "rank_change"
	EventDifficultyChange EventType = "difficulty_change"
)

// Notification is the data sent to alert destinations.
type Notification struct {
	Event      EventType `json:"event"`
	AppName    string    `json:"app_name"`
	Keyword    string    `json:"keyword"`
	Country    string    `json:"country"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	PrevRank   int       `json:"prev_rank,omitempty"`
	NewRank    int       `json:"new_rank,omitempty"`
	Difficulty int       `json:"difficulty,omitempty"`
}

// RankChange builds a notification for a tracked app moving more than
// the configured threshold for a keyword.
func RankChange(appName, keyword, country string, prev, next int) *Notification {
	direction := "climbed"
	if next > prev {
		direction = "dropped"
	}
	return &Notification{
		Event:    EventRankChange,
		AppName:  appName,
		Keyword:  keyword,
		Country:  country,
		PrevRank: prev,
		NewRank:  next,
		Title:    fmt.Sprintf("%s %s for %q", appName, direction, keyword),
		Body: fmt.Sprintf("%s moved #%d → #%d for %q (%s).",
			appName, prev, next, keyword, country),
	}
}

// DifficultyChange builds a notification for a keyword crossing into a
// different difficulty band.
func DifficultyChange(keyword, country, prevBand, newBand string, difficulty int) *Notification {
	return &Notification{
		Event:      EventDifficultyChange,
		Keyword:    keyword,
		Country:    country,
		Difficulty: difficulty,
		Title:      fmt.Sprintf("%q is now %s", keyword, newBand),
		Body: fmt.Sprintf("Difficulty for %q (%s) moved from %s to %s (score %d).",
			keyword, country, prevBand, newBand, difficulty),
	}
}

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
}

// NewManager creates a new alert manager.
func NewManager(notifiers []Notifier) *Manager {
	return &Manager{notifiers: notifiers}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}
