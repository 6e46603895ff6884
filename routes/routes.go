package routes

import (
	"github.com/Madhav-Gupta-28/dropkart-backend-go/handlers"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/metrics"
	customMiddleware "github.com/Madhav-Gupta-28/dropkart-backend-go/middleware"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/labstack/echo/v4"
)

// Dependencies carries the handlers SetupRoutes mounts.
type Dependencies struct {
	Tokens customMiddleware.TokenValidator

	Users               *handlers.UserHandler
	Products            *handlers.ProductHandler
	Cart                *handlers.CartHandler
	Orders              *handlers.OrderHandler
	Notifications       *handlers.NotificationHandler
	DriverNotifications *handlers.NotificationHandler
	Admin               *handlers.AdminHandler
	Delivery            *handlers.DeliveryHandler
	Health              *handlers.HealthHandler
}

func SetupRoutes(e *echo.Echo, d Dependencies) {
	customer := customMiddleware.RequireRole(d.Tokens, utils.RoleCustomer)
	admin := customMiddleware.RequireRole(d.Tokens, utils.RoleAdmin)
	driver := customMiddleware.RequireRole(d.Tokens, utils.RoleDriver)

	e.GET("/health", d.Health.Health)
	e.GET("/metrics", metrics.Handler())

	api := e.Group("/api")

	// Customer auth
	auth := api.Group("/auth")
	auth.POST("/register", d.Users.Register)
	auth.POST("/login", d.Users.Login)

	users := api.Group("/users", customer)
	users.GET("/profile", d.Users.GetProfile)
	users.PUT("/profile", d.Users.UpdateProfile)
	users.PUT("/device-token", d.Users.SetDeviceToken)

	// Product routes
	products := api.Group("/products")
	products.GET("", d.Products.GetProducts)
	products.GET("/:id", d.Products.GetProduct)
	products.POST("", d.Products.CreateProduct, admin)

	// Cart routes
	cart := api.Group("/cart", customer)
	cart.GET("", d.Cart.GetCart)
	cart.POST("/items", d.Cart.AddToCart)
	cart.PUT("/items/:productId", d.Cart.UpdateCartItemQuantity)
	cart.DELETE("/items/:productId", d.Cart.RemoveFromCart)
	cart.DELETE("", d.Cart.ClearCart)

	// Order routes
	orders := api.Group("/orders", customer)
	orders.POST("", d.Orders.CreateOrder)
	orders.GET("", d.Orders.GetUserOrders)
	orders.GET("/:orderId", d.Orders.GetOrder)
	orders.POST("/:orderId/cancel", d.Orders.CancelOrder)

	mountInbox(api.Group("/notifications", customer), d.Notifications)

	// Admin routes
	adminGroup := api.Group("/admin")
	adminGroup.POST("/login", d.Admin.Login)
	protected := adminGroup.Group("", admin)
	protected.GET("/drivers", d.Admin.ListDrivers)
	protected.PATCH("/drivers/:driverId/verify", d.Admin.VerifyDriver)
	protected.GET("/orders", d.Admin.ListOrders)
	protected.POST("/assign", d.Admin.AssignOrder)
	protected.PUT("/fees", d.Admin.UpdateFees)
	protected.PUT("/shipping", d.Admin.UpdateShipping)

	// Driver routes
	deliveryGroup := api.Group("/delivery")
	deliveryGroup.POST("/registration", d.Delivery.Register)
	deliveryGroup.POST("/login", d.Delivery.Login)
	drivers := deliveryGroup.Group("", driver)
	drivers.GET("/profile", d.Delivery.GetProfile)
	drivers.PUT("/profile", d.Delivery.UpdateProfile)
	drivers.PATCH("/availability", d.Delivery.SetAvailability)
	drivers.PUT("/location", d.Delivery.UpdateLocation)
	drivers.PUT("/device-token", d.Delivery.SetDeviceToken)
	drivers.POST("/order/:orderId/respond", d.Delivery.RespondToOrder)
	drivers.POST("/order/:orderId/picked-up", d.Delivery.MarkPickedUp)
	drivers.POST("/order/:orderId/out-for-delivery", d.Delivery.OutForDelivery)
	drivers.POST("/order/:orderId/verify-otp", d.Delivery.VerifyOTP)
	drivers.GET("/orders", d.Delivery.GetAssignedOrders)
	drivers.GET("/history", d.Delivery.GetDeliveryHistory)
	if d.DriverNotifications != nil {
		mountInbox(drivers.Group("/notifications"), d.DriverNotifications)
	}
}

func mountInbox(g *echo.Group, h *handlers.NotificationHandler) {
	g.GET("", h.List)
	g.GET("/unread-count", h.UnreadCount)
	g.PATCH("/read-all", h.MarkAllRead)
	g.PATCH("/:id/read", h.MarkRead)
}
