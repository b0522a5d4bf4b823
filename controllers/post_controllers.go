package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yeremiapane/neighborhood-grub/services"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

type PostController struct {
	Market *services.Market
}

func NewPostController(market *services.Market) *PostController {
	return &PostController{Market: market}
}

type postPayload struct {
	DishName    string          `json:"dish_name" binding:"required"`
	Description string          `json:"description"`
	MinPrice    decimal.Decimal `json:"min_price"`
	MaxServings int             `json:"max_servings"`
	ServingSize decimal.Decimal `json:"serving_size"`
	LastCall    time.Time       `json:"last_call"`
	MealTime    time.Time       `json:"meal_time"`
	Latitude    decimal.Decimal `json:"latitude"`
	Longitude   decimal.Decimal `json:"longitude"`
}

func (p postPayload) input() services.PostInput {
	return services.PostInput{
		DishName:    p.DishName,
		Description: p.Description,
		MinPrice:    p.MinPrice,
		MaxServings: p.MaxServings,
		ServingSize: p.ServingSize,
		LastCall:    p.LastCall,
		MealTime:    p.MealTime,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
	}
}

func (pc *PostController) CreatePost(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req postPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	post, err := pc.Market.Listings.CreatePost(c.Request.Context(), a, req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Dish post created", post)
}

func (pc *PostController) ListOpenPosts(c *gin.Context) {
	posts, err := pc.Market.Listings.OpenPosts(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Open dish posts", posts)
}

func (pc *PostController) GetPost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	post, err := pc.Market.Listings.GetPost(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	available, err := pc.Market.Listings.AvailableServings(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Dish post", gin.H{
		"post":               post,
		"available_servings": available,
	})
}

func (pc *PostController) EditPost(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req postPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	post, err := pc.Market.Listings.EditPost(c.Request.Context(), a, id, req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Dish post updated", post)
}

func (pc *PostController) CancelPost(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	post, err := pc.Market.Listings.CancelPost(c.Request.Context(), a, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Dish post cancelled", post)
}

func (pc *PostController) PlaceBid(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Price       decimal.Decimal `json:"price"`
		NumServings int             `json:"num_servings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	bid, err := pc.Market.Acceptance.PlaceBid(c.Request.Context(), a, id, req.Price, req.NumServings)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Bid placed", bid)
}

// AcceptBid menerima satu bid; saldo diner langsung dipotong dan order dibuat.
func (pc *PostController) AcceptBid(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	bidID, ok := paramID(c, "bid_id")
	if !ok {
		return
	}
	order, err := pc.Market.Acceptance.AcceptBid(c.Request.Context(), a, postID, bidID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Bid accepted", order)
}

func (pc *PostController) RejectBid(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	bidID, ok := paramID(c, "bid_id")
	if !ok {
		return
	}
	bid, err := pc.Market.Acceptance.RejectBid(c.Request.Context(), a, postID, bidID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Bid rejected", bid)
}
