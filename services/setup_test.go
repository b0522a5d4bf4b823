package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/neighborhood-grub/database"
	"github.com/yeremiapane/neighborhood-grub/events"
	"github.com/yeremiapane/neighborhood-grub/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db       *gorm.DB
	market   *Market
	recorder *events.Recorder
	now      time.Time
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// setupTestDB membuka database sqlite in-memory baru untuk satu test.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestEnv(t *testing.T, opts ...func(*Options)) *testEnv {
	t.Helper()
	env := &testEnv{
		db:       setupTestDB(t),
		recorder: &events.Recorder{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	o := Options{
		Locker:    NewMemoryLocker(3 * time.Second),
		Publisher: env.recorder,
		Clock:     func() time.Time { return env.now },
	}
	for _, fn := range opts {
		fn(&o)
	}
	env.market = NewMarket(env.db, o)
	return env
}

func (e *testEnv) account(t *testing.T, name string, roles models.RoleSet, funds string) models.Actor {
	t.Helper()
	acc, err := e.market.Accounts.Create(context.Background(), NewAccount{
		Username:     name,
		Email:        name + "@grub.test",
		PasswordHash: "x",
		Roles:        roles,
	})
	require.NoError(t, err)
	actor := acc.Actor()
	if amt := dec(funds); amt.IsPositive() {
		_, err := e.market.Ledger.Deposit(context.Background(), actor, amt)
		require.NoError(t, err)
	}
	return actor
}

func (e *testEnv) post(t *testing.T, chef models.Actor, minPrice string, maxServings int) *models.DishPost {
	t.Helper()
	post, err := e.market.Listings.CreatePost(context.Background(), chef, PostInput{
		DishName:    "Nasi Goreng",
		MinPrice:    dec(minPrice),
		MaxServings: maxServings,
		ServingSize: dec("1"),
		LastCall:    e.now.Add(2 * time.Hour),
		MealTime:    e.now.Add(4 * time.Hour),
	})
	require.NoError(t, err)
	return post
}

func (e *testEnv) request(t *testing.T, diner models.Actor, minPrice string, servings int) *models.DishRequest {
	t.Helper()
	req, err := e.market.Listings.CreateRequest(context.Background(), diner, RequestInput{
		DishName:    "Rendang",
		PortionSize: dec("1.5"),
		NumServings: servings,
		MinPrice:    dec(minPrice),
		MealTime:    e.now.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return req
}

func (e *testEnv) bid(t *testing.T, diner models.Actor, postID uint, price string, servings int) *models.Bid {
	t.Helper()
	bid, err := e.market.Acceptance.PlaceBid(context.Background(), diner, postID, dec(price), servings)
	require.NoError(t, err)
	return bid
}

// order runs a full post, bid, accept cycle and returns the resulting order.
func (e *testEnv) order(t *testing.T, chef, diner models.Actor) *models.Order {
	t.Helper()
	post := e.post(t, chef, "10", 1)
	bid := e.bid(t, diner, post.ID, "10", 1)
	order, err := e.market.Acceptance.AcceptBid(context.Background(), chef, post.ID, bid.ID)
	require.NoError(t, err)
	return order
}

func (e *testEnv) balance(t *testing.T, actor models.Actor) decimal.Decimal {
	t.Helper()
	bal, err := e.market.Ledger.Balance(context.Background(), actor.AccountID)
	require.NoError(t, err)
	return bal.Amount
}

func (e *testEnv) insertRating(t *testing.T, rater, ratee models.Actor, value int) models.Rating {
	t.Helper()
	r := models.Rating{RaterID: &rater.AccountID, RateeID: &ratee.AccountID, Rating: value, CreatedAt: e.now}
	require.NoError(t, e.db.Create(&r).Error)
	e.now = e.now.Add(time.Minute)
	return r
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}
