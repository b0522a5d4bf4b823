package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/neighborhood-grub/services"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

// AdminController melayani antrian moderasi: red flag, komplain, dan banding suspend.
type AdminController struct {
	Market *services.Market
}

func NewAdminController(market *services.Market) *AdminController {
	return &AdminController{Market: market}
}

func (ac *AdminController) GetPendingRedFlags(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	flags, err := ac.Market.Reputation.PendingRedFlags(c.Request.Context(), a)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Pending red flags", flags)
}

func (ac *AdminController) CloseRedFlag(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	flag, err := ac.Market.Reputation.CloseRedFlag(c.Request.Context(), a, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Red flag closed", flag)
}

func (ac *AdminController) GetPendingComplaints(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	list, err := ac.Market.Reputation.PendingComplaints(c.Request.Context(), a)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Pending complaints", list)
}

func (ac *AdminController) CloseComplaint(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	complaint, err := ac.Market.Reputation.CloseComplaint(c.Request.Context(), a, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Complaint closed", complaint)
}

func (ac *AdminController) GetPendingAppeals(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	list, err := ac.Market.Reputation.PendingAppeals(c.Request.Context(), a)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Pending suspension appeals", list)
}

func (ac *AdminController) ApproveAppeal(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	appeal, err := ac.Market.Reputation.ApproveSuspensionRemoval(c.Request.Context(), a, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Suspension lifted", appeal)
}

func (ac *AdminController) DenyAppeal(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	appeal, err := ac.Market.Reputation.DenySuspensionRemoval(c.Request.Context(), a, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Appeal denied", appeal)
}

// CompletePost menutup post yang sudah lewat waktu makan.
func (ac *AdminController) CompletePost(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	post, err := ac.Market.Listings.CompletePost(c.Request.Context(), a, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Dish post completed", post)
}
