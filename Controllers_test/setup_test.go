package Controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/neighborhood-grub/database"
	"github.com/yeremiapane/neighborhood-grub/idempotency"
	"github.com/yeremiapane/neighborhood-grub/kds"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/router"
	"github.com/yeremiapane/neighborhood-grub/services"
	"github.com/yeremiapane/neighborhood-grub/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type harness struct {
	t      *testing.T
	db     *gorm.DB
	market *services.Market
	hub    *kds.Hub
	router *gin.Engine
}

// setupTestDB menggunakan SQLite in-memory untuk testing
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

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := idempotency.Open(filepath.Join(t.TempDir(), "idem.db"), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{t: t, db: setupTestDB(t), hub: kds.NewHub()}
	h.market = services.NewMarket(h.db, services.Options{Publisher: h.hub})
	h.router = router.SetupRouter(router.Deps{
		Market:      h.market,
		Hub:         h.hub,
		Idempotency: store,
	})
	return h
}

// account membuat akun langsung lewat engine dan mengembalikan token JWT-nya.
func (h *harness) account(name string, roles models.RoleSet) (*models.Account, string) {
	h.t.Helper()
	acc, err := h.market.Accounts.Create(context.Background(), services.NewAccount{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "unused",
		Roles:        roles,
	})
	require.NoError(h.t, err)
	token, err := utils.GenerateToken(acc.ID, acc.Roles)
	require.NoError(h.t, err)
	return acc, token
}

func (h *harness) fund(id uint, amount string) {
	h.t.Helper()
	_, err := h.market.Ledger.Credit(context.Background(), id, decimal.RequireFromString(amount))
	require.NoError(h.t, err)
}

func (h *harness) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Data, into))
	}
	return env
}

// createPost membuat post lewat API atas nama chef dan mengembalikan id-nya.
func (h *harness) createPost(chefToken string, minPrice string, servings int) uint {
	h.t.Helper()
	now := time.Now()
	w := h.do(http.MethodPost, "/api/posts", chefToken, map[string]interface{}{
		"dish_name":    "Rendang",
		"description":  "slow cooked beef",
		"min_price":    minPrice,
		"max_servings": servings,
		"serving_size": "1",
		"last_call":    now.Add(2 * time.Hour),
		"meal_time":    now.Add(4 * time.Hour),
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	var post models.DishPost
	decode(h.t, w, &post)
	return post.ID
}

func (h *harness) placeBid(dinerToken string, postID uint, price string, servings int) uint {
	h.t.Helper()
	w := h.do(http.MethodPost, fmt.Sprintf("/api/posts/%d/bids", postID), dinerToken, map[string]interface{}{
		"price":        price,
		"num_servings": servings,
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	var bid models.Bid
	decode(h.t, w, &bid)
	return bid.ID
}

func (h *harness) balanceOf(token string) decimal.Decimal {
	h.t.Helper()
	w := h.do(http.MethodGet, "/api/balance", token, nil)
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	var bal models.Balance
	decode(h.t, w, &bal)
	return bal.Amount
}
