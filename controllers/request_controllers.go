package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yeremiapane/neighborhood-grub/services"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

type RequestController struct {
	Market *services.Market
}

func NewRequestController(market *services.Market) *RequestController {
	return &RequestController{Market: market}
}

type requestPayload struct {
	DishName    string          `json:"dish_name" binding:"required"`
	Description string          `json:"description"`
	PortionSize decimal.Decimal `json:"portion_size"`
	NumServings int             `json:"num_servings"`
	MinPrice    decimal.Decimal `json:"min_price"`
	MealTime    time.Time       `json:"meal_time"`
	Latitude    decimal.Decimal `json:"latitude"`
	Longitude   decimal.Decimal `json:"longitude"`
}

func (p requestPayload) input() services.RequestInput {
	return services.RequestInput{
		DishName:    p.DishName,
		Description: p.Description,
		PortionSize: p.PortionSize,
		NumServings: p.NumServings,
		MinPrice:    p.MinPrice,
		MealTime:    p.MealTime,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
	}
}

type feedbackPayload struct {
	Text   string          `json:"text"`
	Tip    decimal.Decimal `json:"tip"`
	Rating int             `json:"rating"`
}

func (p feedbackPayload) feedback() services.Feedback {
	return services.Feedback{Text: p.Text, Tip: p.Tip, Rating: p.Rating}
}

func (rc *RequestController) CreateRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req requestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	dr, err := rc.Market.Listings.CreateRequest(c.Request.Context(), a, req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Dish request created", dr)
}

func (rc *RequestController) ListOpenRequests(c *gin.Context) {
	list, err := rc.Market.Listings.OpenRequests(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Open dish requests", list)
}

func (rc *RequestController) GetRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	dr, err := rc.Market.Listings.GetRequest(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Dish request", dr)
}

func (rc *RequestController) EditRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req requestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	dr, err := rc.Market.Listings.EditRequest(c.Request.Context(), a, id, req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Dish request updated", dr)
}

func (rc *RequestController) CancelRequest(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	dr, err := rc.Market.Listings.CancelRequest(c.Request.Context(), a, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Dish request cancelled", dr)
}

func (rc *RequestController) PlaceOffer(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	offer, err := rc.Market.Acceptance.PlaceOffer(c.Request.Context(), a, id, req.Price)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Offer placed", offer)
}

func (rc *RequestController) AcceptOffer(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	requestID, ok := paramID(c, "id")
	if !ok {
		return
	}
	offerID, ok := paramID(c, "offer_id")
	if !ok {
		return
	}
	offer, err := rc.Market.Acceptance.AcceptOffer(c.Request.Context(), a, requestID, offerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Offer accepted", offer)
}

func (rc *RequestController) RejectOffer(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	requestID, ok := paramID(c, "id")
	if !ok {
		return
	}
	offerID, ok := paramID(c, "offer_id")
	if !ok {
		return
	}
	offer, err := rc.Market.Acceptance.RejectOffer(c.Request.Context(), a, requestID, offerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Offer rejected", offer)
}

func (rc *RequestController) SubmitFeedback(c *gin.Context) {
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
	dr, err := rc.Market.Reputation.SubmitRequestFeedback(c.Request.Context(), a, id, req.feedback())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Feedback submitted", dr)
}
