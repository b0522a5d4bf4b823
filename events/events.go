// Package events carries marketplace domain events to outside observers such as
// access control, notification fan-out and the realtime hub.
package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Jenis event
const (
	BidPlaced          = "bid_placed"
	BidAccepted        = "bid_accepted"
	BidRejected        = "bid_rejected"
	OfferPlaced        = "offer_placed"
	OfferAccepted      = "offer_accepted"
	OfferRejected      = "offer_rejected"
	PostCancelled      = "post_cancelled"
	PostCompleted      = "post_completed"
	RequestCancelled   = "request_cancelled"
	RequestCompleted   = "request_completed"
	OrderCancelled     = "order_cancelled"
	OrderCompleted     = "order_completed"
	AccountSuspended   = "account_suspended"
	AccountReinstated  = "account_reinstated"
	AccountDeactivated = "account_deactivated"
	RedFlagRaised      = "red_flag_raised"
)

// Event targets AccountID when non-zero; zero means everyone may see it.
type Event struct {
	Type      string      `json:"event"`
	AccountID uint        `json:"account_id,omitempty"`
	Data      interface{} `json:"data"`
	At        time.Time   `json:"at"`
}

func New(eventType string, accountID uint, data interface{}) Event {
	return Event{Type: eventType, AccountID: accountID, Data: data, At: time.Now().UTC()}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []string {
	evs := r.Events()
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Type)
	}
	return out
}
