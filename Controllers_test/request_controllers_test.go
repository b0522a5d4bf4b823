package Controllers_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/neighborhood-grub/models"
)

func TestOfferFlowOverHTTP(t *testing.T) {
	h := newHarness(t)
	_, chefToken := h.account("chef", models.RoleChef)
	_, rivalToken := h.account("rival", models.RoleChef)
	diner, dinerToken := h.account("diner", models.RoleDiner)
	h.fund(diner.ID, "100")

	w := h.do(http.MethodPost, "/api/requests", dinerToken, map[string]interface{}{
		"dish_name":    "Nasi Goreng",
		"portion_size": "1.5",
		"num_servings": 3,
		"min_price":    "8",
		"meal_time":    time.Now().Add(6 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var req models.DishRequest
	decode(t, w, &req)

	offer := func(token, price string) models.Offer {
		w := h.do(http.MethodPost, fmt.Sprintf("/api/requests/%d/offers", req.ID), token, map[string]string{"price": price})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var o models.Offer
		decode(t, w, &o)
		return o
	}
	mine := offer(chefToken, "9")
	theirs := offer(rivalToken, "10")

	// diner tidak bisa membuat offer
	w = h.do(http.MethodPost, fmt.Sprintf("/api/requests/%d/offers", req.ID), dinerToken, map[string]string{"price": "9"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, fmt.Sprintf("/api/requests/%d/offers/%d/accept", req.ID, mine.ID), dinerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.True(t, h.balanceOf(dinerToken).Equal(decimal.NewFromInt(73)))
	assert.True(t, h.balanceOf(chefToken).Equal(decimal.NewFromInt(27)))

	// offer lain sudah ditolak otomatis
	w = h.do(http.MethodPost, fmt.Sprintf("/api/requests/%d/offers/%d/accept", req.ID, theirs.ID), dinerToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodPost, fmt.Sprintf("/api/requests/%d/feedback", req.ID), dinerToken, map[string]interface{}{
		"text":   "pas sekali",
		"tip":    "0",
		"rating": 4,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &req)
	assert.Equal(t, models.StatusComplete, req.Status)

	w = h.do(http.MethodPost, fmt.Sprintf("/api/requests/%d/cancel", req.ID), dinerToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListOpenRequestsAndCancel(t *testing.T) {
	h := newHarness(t)
	_, dinerToken := h.account("diner", models.RoleDiner)
	_, chefToken := h.account("chef", models.RoleChef)

	w := h.do(http.MethodPost, "/api/requests", dinerToken, map[string]interface{}{
		"dish_name":    "Gado-gado",
		"portion_size": "1",
		"num_servings": 1,
		"min_price":    "5",
		"meal_time":    time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var req models.DishRequest
	decode(t, w, &req)

	w = h.do(http.MethodGet, "/api/requests", chefToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var open []models.DishRequest
	decode(t, w, &open)
	require.Len(t, open, 1)
	assert.Equal(t, "Gado-gado", open[0].Dish.Name)

	w = h.do(http.MethodPost, fmt.Sprintf("/api/requests/%d/cancel", req.ID), dinerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/requests", chefToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &open)
	assert.Empty(t, open)
}

func TestCreateRequestValidation(t *testing.T) {
	h := newHarness(t)
	_, dinerToken := h.account("diner", models.RoleDiner)

	w := h.do(http.MethodPost, "/api/requests", dinerToken, map[string]interface{}{
		"dish_name":    "Sate",
		"portion_size": "1",
		"num_servings": 0,
		"min_price":    "5",
		"meal_time":    time.Now().Add(-time.Hour),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
