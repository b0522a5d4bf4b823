package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/neighborhood-grub/controllers"
	"github.com/yeremiapane/neighborhood-grub/idempotency"
	"github.com/yeremiapane/neighborhood-grub/kds"
	"github.com/yeremiapane/neighborhood-grub/metrics"
	"github.com/yeremiapane/neighborhood-grub/middlewares"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/services"
)

// Deps adalah semua komponen yang dibutuhkan router.
type Deps struct {
	Market      *services.Market
	Hub         *kds.Hub
	Idempotency *idempotency.Store // nil mematikan replay
	CORSOrigin  string
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if d.Hub == nil {
		d.Hub = kds.Default()
	}

	// Apply security middlewares
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(d.CORSOrigin))
	r.Use(middlewares.LoggerMiddleware())
	r.Use(metrics.Middleware())
	// 50 request/detik per IP
	r.Use(middlewares.NewRateLimiter(20*time.Millisecond, 50).RateLimit())

	// Inisialisasi controller
	userCtrl := controllers.NewUserController(d.Market)
	postCtrl := controllers.NewPostController(d.Market)
	requestCtrl := controllers.NewRequestController(d.Market)
	orderCtrl := controllers.NewOrderController(d.Market)
	adminCtrl := controllers.NewAdminController(d.Market)

	idem := func(c *gin.Context) { c.Next() }
	if d.Idempotency != nil {
		idem = middlewares.Idempotency(d.Idempotency)
	}

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Rate limiter untuk login/register
	public := r.Group("/")
	public.Use(middlewares.NewStrictRateLimiter())
	{
		public.POST("/register", userCtrl.Register)
		public.POST("/login", userCtrl.Login)
	}

	// WebSocket endpoint dengan middleware khusus
	wsGroup := r.Group("/ws")
	wsGroup.Use(middlewares.WebSocketAuthMiddleware())
	{
		wsGroup.GET("/events", controllers.EventsHandler(d.Hub))
	}

	// ----------------------------------------------------------------
	//                      AUTHENTICATED ROUTES
	// ----------------------------------------------------------------
	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware())

	// Akun yang disuspend tetap boleh mengajukan banding
	api.POST("/appeals", userCtrl.FileAppeal)

	auth := api.Group("")
	auth.Use(middlewares.SuspensionGate(d.Market.Accounts))

	auth.GET("/profile", userCtrl.GetProfile)
	auth.GET("/balance", userCtrl.GetBalance)
	auth.GET("/balance/ledger", userCtrl.GetLedger)
	auth.POST("/balance/deposit", idem, userCtrl.Deposit)
	auth.POST("/balance/withdraw", idem, userCtrl.Withdraw)

	// DISH POSTS
	auth.GET("/posts", postCtrl.ListOpenPosts)
	auth.GET("/posts/:id", postCtrl.GetPost)
	auth.POST("/posts", middlewares.RequireRole(models.RoleChef), postCtrl.CreatePost)
	auth.PATCH("/posts/:id", middlewares.RequireRole(models.RoleChef), postCtrl.EditPost)
	auth.POST("/posts/:id/cancel", postCtrl.CancelPost)
	auth.POST("/posts/:id/bids", middlewares.RequireRole(models.RoleDiner), postCtrl.PlaceBid)
	auth.POST("/posts/:id/bids/:bid_id/accept", middlewares.RequireRole(models.RoleChef), idem, postCtrl.AcceptBid)
	auth.POST("/posts/:id/bids/:bid_id/reject", middlewares.RequireRole(models.RoleChef), postCtrl.RejectBid)

	// DISH REQUESTS
	auth.GET("/requests", requestCtrl.ListOpenRequests)
	auth.GET("/requests/:id", requestCtrl.GetRequest)
	auth.POST("/requests", middlewares.RequireRole(models.RoleDiner), requestCtrl.CreateRequest)
	auth.PATCH("/requests/:id", middlewares.RequireRole(models.RoleDiner), requestCtrl.EditRequest)
	auth.POST("/requests/:id/cancel", middlewares.RequireRole(models.RoleDiner), requestCtrl.CancelRequest)
	auth.POST("/requests/:id/offers", middlewares.RequireRole(models.RoleChef), requestCtrl.PlaceOffer)
	auth.POST("/requests/:id/offers/:offer_id/accept", middlewares.RequireRole(models.RoleDiner), idem, requestCtrl.AcceptOffer)
	auth.POST("/requests/:id/offers/:offer_id/reject", middlewares.RequireRole(models.RoleDiner), requestCtrl.RejectOffer)
	auth.POST("/requests/:id/feedback", middlewares.RequireRole(models.RoleDiner), idem, requestCtrl.SubmitFeedback)

	// ORDERS
	auth.GET("/orders", orderCtrl.GetMyOrders)
	auth.GET("/orders/:id", orderCtrl.GetOrder)
	auth.POST("/orders/:id/cancel", middlewares.RequireRole(models.RoleDiner), orderCtrl.CancelOrder)
	auth.POST("/orders/:id/feedback", middlewares.RequireRole(models.RoleDiner), idem, orderCtrl.SubmitFeedback)
	auth.POST("/orders/:id/rating", middlewares.RequireRole(models.RoleChef), orderCtrl.RateDiner)
	auth.POST("/orders/:id/complaint", middlewares.RequireRole(models.RoleDiner), orderCtrl.FileComplaint)

	// Routes untuk Admin
	admin := auth.Group("/admin")
	admin.Use(middlewares.RequireRole(models.RoleAdmin))
	{
		admin.GET("/red-flags", adminCtrl.GetPendingRedFlags)
		admin.POST("/red-flags/:id/close", adminCtrl.CloseRedFlag)
		admin.GET("/complaints", adminCtrl.GetPendingComplaints)
		admin.POST("/complaints/:id/close", adminCtrl.CloseComplaint)
		admin.GET("/appeals", adminCtrl.GetPendingAppeals)
		admin.POST("/appeals/:id/approve", adminCtrl.ApproveAppeal)
		admin.POST("/appeals/:id/deny", adminCtrl.DenyAppeal)
		admin.POST("/posts/:id/complete", adminCtrl.CompletePost)
	}

	return r
}
