package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists users and the append-only record log.
type Store interface {
	Users(ctx context.Context) ([]User, error)
	// UserByID returns nil, nil when no user has the id.
	UserByID(ctx context.Context, id string) (*User, error)
	PutUser(ctx context.Context, u User) error
	Records(ctx context.Context) ([]TimeRecord, error)
	AppendRecord(ctx context.Context, rec TimeRecord) error
	Close() error
}

// Ledger is the append-only attendance log plus the status projection.
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger creates a ledger backed by store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// RecordEvent appends a single record for userID. A zero ts means now.
// The ledger does not check that typ alternates with the user's previous
// event; callers decide the direction from the derived status.
func (l *Ledger) RecordEvent(ctx context.Context, userID string, typ EventType, ts time.Time, ip string, geo *Geo) (TimeRecord, error) {
	if !typ.Valid() {
		return TimeRecord{}, ErrInvalidEventType
	}
	u, err := l.store.UserByID(ctx, userID)
	if err != nil {
		return TimeRecord{}, fmt.Errorf("lookup user %s: %w", userID, err)
	}
	if u == nil {
		return TimeRecord{}, ErrUserNotFound
	}
	if ts.IsZero() {
		ts = l.now()
	}

	rec := TimeRecord{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		UserName:  u.Name,
		Type:      typ,
		Timestamp: ts.UTC(),
		IPAddress: ip,
	}
	if geo != nil {
		lat, lng := geo.Latitude, geo.Longitude
		rec.Latitude = &lat
		rec.Longitude = &lng
	}
	if err := l.store.AppendRecord(ctx, rec); err != nil {
		return TimeRecord{}, fmt.Errorf("append record: %w", err)
	}
	return rec, nil
}

// ListRecords returns every record, newest first.
func (l *Ledger) ListRecords(ctx context.Context) ([]TimeRecord, error) {
	records, err := l.store.Records(ctx)
	if err != nil {
		return nil, err
	}
	return SortNewestFirst(records), nil
}

// Users returns the roster with derived status and without password hashes.
func (l *Ledger) Users(ctx context.Context) ([]User, error) {
	users, err := l.store.Users(ctx)
	if err != nil {
		return nil, err
	}
	records, err := l.store.Records(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, withStatus(u, records).Public())
	}
	return out, nil
}

// User returns a single user with derived status. The password hash is kept
// so callers can authenticate; strip it with Public before responding.
func (l *Ledger) User(ctx context.Context, id string) (User, error) {
	u, err := l.store.UserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if u == nil {
		return User{}, ErrUserNotFound
	}
	records, err := l.store.Records(ctx)
	if err != nil {
		return User{}, err
	}
	return withStatus(*u, records), nil
}

// UserByName finds a user by display name, ignoring case.
func (l *Ledger) UserByName(ctx context.Context, name string) (User, error) {
	users, err := l.store.Users(ctx)
	if err != nil {
		return User{}, err
	}
	name = strings.TrimSpace(name)
	for _, u := range users {
		if strings.EqualFold(u.Name, name) {
			return l.User(ctx, u.ID)
		}
	}
	return User{}, ErrUserNotFound
}

// Status derives the current clock state of userID.
func (l *Ledger) Status(ctx context.Context, userID string) (Status, error) {
	u, err := l.User(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	return Status{IsClockedIn: u.IsClockedIn, LastClockIn: u.LastClockIn}, nil
}
