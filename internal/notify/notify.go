package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/slack-go/slack"

	"timeclock/internal/attendance"
	"timeclock/internal/metrics"
	"timeclock/internal/queue"
)

// Notifier announces a clock event somewhere humans look.
type Notifier interface {
	Notify(ctx context.Context, rec attendance.TimeRecord) error
}

// Format renders rec as a one-line message in loc.
func Format(rec attendance.TimeRecord, loc *time.Location) string {
	verb := "clocked in"
	if rec.Type == attendance.EventOut {
		verb = "clocked out"
	}
	msg := fmt.Sprintf("%s %s at %s", rec.UserName, verb, rec.Timestamp.In(loc).Format("15:04"))
	if rec.IPAddress == attendance.ManualIP {
		return msg + " (manual entry)"
	}
	if rec.IPAddress != "" {
		msg += " from " + rec.IPAddress
	}
	return msg
}

// Slack posts to a single channel.
type Slack struct {
	client  *slack.Client
	channel string
	loc     *time.Location
}

func NewSlack(token, channel string, loc *time.Location) *Slack {
	return &Slack{client: slack.New(token), channel: channel, loc: loc}
}

func (s *Slack) Notify(ctx context.Context, rec attendance.TimeRecord) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(Format(rec, s.loc), false),
		slack.MsgOptionAsUser(true),
	)
	if err != nil {
		return fmt.Errorf("failed to post message to Slack: %w", err)
	}
	return nil
}

// Log writes notifications to the process log.
type Log struct {
	Loc *time.Location
}

func (l Log) Notify(_ context.Context, rec attendance.TimeRecord) error {
	loc := l.Loc
	if loc == nil {
		loc = time.Local
	}
	log.Printf("notify: %s", Format(rec, loc))
	return nil
}

// Run drains clock messages until msgs is closed. Failures are logged and
// the message is dropped.
func Run(ctx context.Context, msgs <-chan queue.Message, n Notifier) {
	for msg := range msgs {
		if msg.Type != queue.TypeClock {
			continue
		}
		var rec attendance.TimeRecord
		if err := json.Unmarshal(msg.Body, &rec); err != nil {
			log.Printf("notify: bad clock message: %v", err)
			metrics.Notifications.WithLabelValues("invalid").Inc()
			continue
		}
		if err := n.Notify(ctx, rec); err != nil {
			log.Printf("notify: record %s: %v", rec.ID, err)
			metrics.Notifications.WithLabelValues("failed").Inc()
			continue
		}
		metrics.Notifications.WithLabelValues("sent").Inc()
	}
}
