package attendance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"timeclock/internal/auth"
	"timeclock/internal/metrics"
	"timeclock/internal/queue"
)

// ManualIP is stored as the address of records entered by an administrator.
const ManualIP = "manual"

// DefaultPublishTimeout bounds how long a clock request waits on the queue.
const DefaultPublishTimeout = time.Second

// Publisher receives a message for every appended record.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// ClockResult is returned to the caller after a successful clock action.
type ClockResult struct {
	Record  TimeRecord `json:"record"`
	Message string     `json:"message"`
}

// Service implements the clock station and manual entry actions on top of
// the ledger.
type Service struct {
	ledger         *Ledger
	pub            Publisher
	publishTimeout time.Duration
}

// NewService creates a service. pub may be nil.
func NewService(ledger *Ledger, pub Publisher) *Service {
	return &Service{ledger: ledger, pub: pub, publishTimeout: DefaultPublishTimeout}
}

// Ledger exposes the underlying ledger for read paths.
func (s *Service) Ledger() *Ledger { return s.ledger }

// Clock toggles the user's state: a clocked-in user is clocked out and vice
// versa. The password is only checked when the user has one.
func (s *Service) Clock(ctx context.Context, userID, password, ip string, geo *Geo) (ClockResult, error) {
	u, err := s.ledger.User(ctx, userID)
	if err != nil {
		return ClockResult{}, err
	}
	if u.HasPassword() && !auth.CheckPassword(u.Password, password) {
		return ClockResult{}, ErrWrongPassword
	}
	if ip == "" {
		ip = "127.0.0.1"
	}

	typ := EventIn
	if u.IsClockedIn {
		typ = EventOut
	}
	rec, err := s.ledger.RecordEvent(ctx, u.ID, typ, time.Time{}, ip, geo)
	if err != nil {
		return ClockResult{}, err
	}
	s.afterAppend(ctx, rec)
	return ClockResult{Record: rec, Message: fmt.Sprintf("Successfully clocked %s!", typ)}, nil
}

// ManualEntry records an event with an explicit type and time on behalf of
// the named user.
func (s *Service) ManualEntry(ctx context.Context, userName string, typ EventType, ts time.Time) (ClockResult, error) {
	if !typ.Valid() {
		return ClockResult{}, ErrInvalidEventType
	}
	u, err := s.ledger.UserByName(ctx, userName)
	if err != nil {
		return ClockResult{}, err
	}
	rec, err := s.ledger.RecordEvent(ctx, u.ID, typ, ts, ManualIP, nil)
	if err != nil {
		return ClockResult{}, err
	}
	s.afterAppend(ctx, rec)
	return ClockResult{
		Record:  rec,
		Message: fmt.Sprintf("Manual %s recorded for %s", typ, u.Name),
	}, nil
}

func (s *Service) afterAppend(ctx context.Context, rec TimeRecord) {
	metrics.ClockEvents.WithLabelValues(string(rec.Type)).Inc()
	if s.pub == nil {
		return
	}
	body, err := json.Marshal(rec)
	if err != nil {
		log.Printf("encode record %s: %v", rec.ID, err)
		return
	}
	// The record is already stored; a full or stalled queue only loses the
	// notification.
	pctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	if err := s.pub.Publish(pctx, queue.Message{Type: queue.TypeClock, Body: body}); err != nil {
		log.Printf("queue publish for record %s failed: %v", rec.ID, err)
	}
}
