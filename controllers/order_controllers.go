package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/services"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

type OrderController struct {
	Market *services.Market
}

func NewOrderController(market *services.Market) *OrderController {
	return &OrderController{Market: market}
}

func isParty(a models.Actor, order *models.Order) bool {
	if a.Can(models.RoleAdmin) {
		return true
	}
	if order.DinerID != nil && *order.DinerID == a.AccountID {
		return true
	}
	return order.DishPost != nil && order.DishPost.ChefID != nil && *order.DishPost.ChefID == a.AccountID
}

// GetMyOrders mengembalikan order milik caller sebagai diner.
func (oc *OrderController) GetMyOrders(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	orders, err := oc.Market.Listings.OrdersFor(c.Request.Context(), a)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Orders", orders)
}

func (oc *OrderController) GetOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := oc.Market.Listings.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if !isParty(a, order) {
		utils.RespondError(c, http.StatusForbidden, errors.New("not a party to this order"))
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order", order)
}

func (oc *OrderController) CancelOrder(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := oc.Market.Listings.CancelOrder(c.Request.Context(), a, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order cancelled", order)
}

func (oc *OrderController) SubmitFeedback(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req feedbackPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	order, err := oc.Market.Reputation.SubmitFeedback(c.Request.Context(), a, id, req.feedback())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Feedback submitted", order)
}

func (oc *OrderController) RateDiner(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Rating int `json:"rating"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	order, err := oc.Market.Reputation.SubmitDinerRating(c.Request.Context(), a, id, req.Rating)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Diner rated", order)
}

func (oc *OrderController) FileComplaint(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Description string `json:"description" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	complaint, err := oc.Market.Reputation.FileComplaint(c.Request.Context(), a, id, req.Description)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Complaint filed", complaint)
}
