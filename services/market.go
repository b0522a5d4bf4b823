package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/neighborhood-grub/config"
	"github.com/yeremiapane/neighborhood-grub/events"
	"github.com/yeremiapane/neighborhood-grub/metrics"
	"github.com/yeremiapane/neighborhood-grub/utils"
	"gorm.io/gorm"
)

// Options configures NewMarket. Zero values fall back to the defaults.
type Options struct {
	Policy    *config.Policy
	Locker    Locker
	Publisher events.Publisher
	Labeler   Labeler
	Clock     func() time.Time
}

// Market bundles the engine components sharing one database.
type Market struct {
	Accounts   *AccountService
	Ledger     *Ledger
	Listings   *ListingService
	Acceptance *AcceptanceService
	Reputation *ReputationService
}

// core holds the dependencies shared by every component.
type core struct {
	db        *gorm.DB
	policy    config.Policy
	locker    Locker
	publisher events.Publisher
	now       func() time.Time
}

func NewMarket(db *gorm.DB, opts Options) *Market {
	c := &core{
		db:        db,
		policy:    config.DefaultPolicy(),
		locker:    opts.Locker,
		publisher: opts.Publisher,
		now:       opts.Clock,
	}
	if opts.Policy != nil {
		c.policy = *opts.Policy
	}
	if c.locker == nil {
		c.locker = NewMemoryLocker(3 * time.Second)
	}
	if c.publisher == nil {
		c.publisher = events.Nop{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	labeler := opts.Labeler
	if labeler == nil {
		labeler = NopLabeler{}
	}

	ledger := &Ledger{core: c}
	return &Market{
		Accounts:   &AccountService{core: c},
		Ledger:     ledger,
		Listings:   &ListingService{core: c, labeler: labeler},
		Acceptance: &AcceptanceService{core: c, ledger: ledger},
		Reputation: &ReputationService{core: c, ledger: ledger},
	}
}

// outbox collects events inside a transaction; they are published only after commit.
type outbox []events.Event

func (o *outbox) add(eventType string, accountID uint, data interface{}) {
	*o = append(*o, events.New(eventType, accountID, data))
}

func (c *core) publish(ctx context.Context, box outbox) {
	for _, e := range box {
		if err := c.publisher.Publish(ctx, e); err != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{
				"event":      e.Type,
				"account_id": e.AccountID,
			}).Errorf("publish event: %v", err)
		}
	}
}

func postLockKey(id uint) string    { return fmt.Sprintf("post:%d", id) }
func requestLockKey(id uint) string { return fmt.Sprintf("request:%d", id) }

// lockListing takes the per-listing lock. Any failure to get it is a Conflict.
func (c *core) lockListing(ctx context.Context, op, key string) (func(), error) {
	start := time.Now()
	release, err := c.locker.Acquire(ctx, key)
	metrics.LockWait.Observe(time.Since(start).Seconds())
	if err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{"op": op, "lock": key}).Warnf("lock not acquired: %v", err)
		if errors.Is(err, ErrLockTimeout) {
			return nil, fail(op, ErrConflict, "%s is busy, retry later", key)
		}
		return nil, fail(op, ErrConflict, "lock %s: %v", key, err)
	}
	return release, nil
}
