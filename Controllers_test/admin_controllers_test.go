package Controllers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/neighborhood-grub/models"
)

func TestSuspendedAccountCanOnlyAppeal(t *testing.T) {
	h := newHarness(t)
	_, adminToken := h.account("admin", models.RoleAdmin)
	diner, dinerToken := h.account("diner", models.RoleDiner)

	require.NoError(t, h.db.Model(&models.SuspensionInfo{}).
		Where("account_id = ?", diner.ID).
		Updates(map[string]interface{}{"suspended": true, "count": 1}).Error)

	w := h.do(http.MethodGet, "/api/profile", dinerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodPost, "/api/appeals", dinerToken, map[string]string{"justification": "it was a misunderstanding"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodPost, "/api/appeals", dinerToken, map[string]string{"justification": "please"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodGet, "/api/admin/appeals", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var appeals []models.RemoveSuspensionRequest
	decode(t, w, &appeals)
	require.Len(t, appeals, 1)

	w = h.do(http.MethodPost, fmt.Sprintf("/api/admin/appeals/%d/approve", appeals[0].ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodGet, "/api/profile", dinerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// banding yang sudah diputus tidak bisa diputus lagi
	w = h.do(http.MethodPost, fmt.Sprintf("/api/admin/appeals/%d/deny", appeals[0].ID), adminToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAppealWithoutSuspensionIsConflict(t *testing.T) {
	h := newHarness(t)
	_, dinerToken := h.account("diner", models.RoleDiner)

	w := h.do(http.MethodPost, "/api/appeals", dinerToken, map[string]string{"justification": "just in case"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminRoutesNeedAdmin(t *testing.T) {
	h := newHarness(t)
	_, dinerToken := h.account("diner", models.RoleDiner)

	for _, path := range []string{"/api/admin/red-flags", "/api/admin/complaints", "/api/admin/appeals"} {
		w := h.do(http.MethodGet, path, dinerToken, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}
}

func TestComplaintReviewAndPostCompletion(t *testing.T) {
	h := newHarness(t)
	_, adminToken := h.account("admin", models.RoleAdmin)
	_, chefToken := h.account("chef", models.RoleChef)
	diner, dinerToken := h.account("diner", models.RoleDiner)
	h.fund(diner.ID, "50")

	postID := h.createPost(chefToken, "10", 2)
	bidID := h.placeBid(dinerToken, postID, "10", 1)
	w := h.do(http.MethodPost, fmt.Sprintf("/api/posts/%d/bids/%d/accept", postID, bidID), chefToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var order models.Order
	decode(t, w, &order)

	w = h.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/complaint", order.ID), dinerToken, map[string]string{"description": "cold food"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var complaint models.Complaint
	decode(t, w, &complaint)

	w = h.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/complaint", order.ID), dinerToken, map[string]string{"description": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(http.MethodGet, "/api/admin/complaints", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []models.Complaint
	decode(t, w, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, complaint.ID, pending[0].ID)

	w = h.do(http.MethodPost, fmt.Sprintf("/api/admin/complaints/%d/close", complaint.ID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, fmt.Sprintf("/api/admin/posts/%d/complete", postID), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var post models.DishPost
	decode(t, w, &post)
	assert.Equal(t, models.StatusComplete, post.Status)

	// order yang masih Open tetap bisa dibatalkan diner
	w = h.do(http.MethodPost, fmt.Sprintf("/api/orders/%d/cancel", order.ID), dinerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
