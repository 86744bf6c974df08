package mqtt

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/tphakala/killclip/internal/errors"
)

// Topic suffixes below the configured prefix.
const (
	TopicClips    = "clips"
	TopicSessions = "sessions"
)

// ClipEvent is published for every created clip.
//
// Field names are part of the published contract.
type ClipEvent struct {
	Node         string    `json:"node"`
	SessionURL   string    `json:"sessionUrl"`
	Index        int       `json:"index"`
	Label        string    `json:"label"`
	Kills        int       `json:"kills"`
	StartSeconds float64   `json:"startSeconds"`
	EndSeconds   float64   `json:"endSeconds"`
	File         string    `json:"file"`
	FirstKillAt  time.Time `json:"firstKillAt"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SessionEvent is published once a session was processed.
type SessionEvent struct {
	Node        string    `json:"node"`
	SessionURL  string    `json:"sessionUrl"`
	PublishedAt float64   `json:"publishedAt"`
	Kills       int       `json:"kills"`
	Groups      int       `json:"groups"`
	Created     int       `json:"created"`
	Failed      int       `json:"failed"`
	Summary     string    `json:"summary"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// Publisher serializes events and publishes them below a topic prefix.
type Publisher struct {
	client Client
	prefix string
}

// NewPublisher returns a publisher using client.
func NewPublisher(client Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

// Topic returns the full topic for suffix.
func (p *Publisher) Topic(suffix string) string {
	return path.Join(p.prefix, suffix)
}

// PublishClip publishes a ClipEvent.
func (p *Publisher) PublishClip(ctx context.Context, ev ClipEvent) error {
	return p.publishJSON(ctx, TopicClips, ev)
}

// PublishSession publishes a SessionEvent.
func (p *Publisher) PublishSession(ctx context.Context, ev SessionEvent) error {
	return p.publishJSON(ctx, TopicSessions, ev)
}

func (p *Publisher) publishJSON(ctx context.Context, suffix string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", p.Topic(suffix)).
			Build()
	}
	return p.client.Publish(ctx, p.Topic(suffix), string(payload))
}
