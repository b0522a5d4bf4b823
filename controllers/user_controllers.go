package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/services"
	"github.com/yeremiapane/neighborhood-grub/utils"
	"golang.org/x/crypto/bcrypt"
)

type UserController struct {
	Market *services.Market
}

func NewUserController(market *services.Market) *UserController {
	return &UserController{Market: market}
}

// Register akun baru. Role admin tidak bisa didaftarkan lewat endpoint ini.
func (uc *UserController) Register(c *gin.Context) {
	var req struct {
		Username  string          `json:"username" binding:"required"`
		Email     string          `json:"email" binding:"required,email"`
		Password  string          `json:"password" binding:"required,min=8"`
		Roles     []string        `json:"roles"`
		Latitude  decimal.Decimal `json:"latitude"`
		Longitude decimal.Decimal `json:"longitude"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var roles models.RoleSet
	for _, name := range req.Roles {
		r := models.ParseRole(strings.ToLower(name))
		if r == 0 || r == models.RoleAdmin {
			utils.RespondError(c, http.StatusBadRequest, errors.New("roles must be diner and/or chef"))
			return
		}
		roles |= r
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	account, err := uc.Market.Accounts.Create(c.Request.Context(), services.NewAccount{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashed),
		Roles:        roles,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.InfoLogger.WithFields(logrus.Fields{"account_id": account.ID, "roles": account.Roles.Names()}).Info("new account registered")
	utils.RespondJSON(c, http.StatusCreated, "Account registered", gin.H{
		"account_id": account.ID,
		"roles":      account.Roles.Names(),
	})
}

// Login -> return JWT
func (uc *UserController) Login(c *gin.Context) {
	var input struct {
		Login    string `json:"login" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	account, err := uc.Market.Accounts.FindByLogin(c.Request.Context(), input.Login)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(input.Password)); err != nil {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}
	if !account.Active {
		utils.RespondError(c, http.StatusForbidden, errors.New("account has been deactivated"))
		return
	}

	token, err := utils.GenerateToken(account.ID, account.Roles)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.WithField("account_id", account.ID).Info("login successful")
	utils.RespondJSON(c, http.StatusOK, "Login successful", gin.H{
		"token": token,
		"roles": account.Roles.Names(),
	})
}

func (uc *UserController) GetProfile(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	account, err := uc.Market.Accounts.Get(c.Request.Context(), a.AccountID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Profile data retrieved successfully", gin.H{
		"id":         account.ID,
		"username":   account.Username,
		"email":      account.Email,
		"roles":      account.Roles.Names(),
		"active":     account.Active,
		"balance":    account.Balance,
		"suspension": account.Suspension,
	})
}

func (uc *UserController) GetBalance(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	bal, err := uc.Market.Ledger.Balance(c.Request.Context(), a.AccountID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Balance", bal)
}

func (uc *UserController) GetLedger(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	entries, err := uc.Market.Ledger.Entries(c.Request.Context(), a.AccountID, 100)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Ledger entries", entries)
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (uc *UserController) Deposit(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	bal, err := uc.Market.Ledger.Deposit(c.Request.Context(), a, req.Amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Deposit successful", bal)
}

func (uc *UserController) Withdraw(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	bal, err := uc.Market.Ledger.Withdraw(c.Request.Context(), a, req.Amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Withdrawal successful", bal)
}

// FileAppeal dipakai akun yang sedang disuspend untuk meminta pencabutan suspend.
func (uc *UserController) FileAppeal(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req struct {
		Justification string `json:"justification" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	appeal, err := uc.Market.Reputation.RequestSuspensionRemoval(c.Request.Context(), a, req.Justification)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Appeal submitted", appeal)
}
