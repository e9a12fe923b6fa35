package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"librarylending/internal/middleware"
	"librarylending/internal/platform/logger"
	"librarylending/internal/services"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Catalog    services.CatalogService
	Borrowings services.BorrowingService
	Payments   services.PaymentService
	Auth       *middleware.Authenticator
	Log        *logger.Logger
	// Ping backs /health. Optional.
	Ping func(ctx context.Context) error
}

type LibraryHandler struct {
	catalog    services.CatalogService
	borrowings services.BorrowingService
	payments   services.PaymentService
	log        *logger.Logger
	ping       func(ctx context.Context) error
}

func RegisterRoutes(r *gin.Engine, deps Deps) {
	registerValidators()

	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	h := &LibraryHandler{
		catalog:    deps.Catalog,
		borrowings: deps.Borrowings,
		payments:   deps.Payments,
		log:        log.With("component", "handlers"),
		ping:       deps.Ping,
	}
	authed := deps.Auth.RequireAuth()
	staff := deps.Auth.RequireStaff()

	r.GET("/health", h.health)

	// Catalogue: reads are public, writes are staff-only.
	books := r.Group("/books")
	books.GET("/", h.listBooks)
	books.GET("/:id/", h.getBook)
	books.POST("/", authed, staff, h.createBook)
	books.PUT("/:id/", authed, staff, h.updateBook)
	books.PATCH("/:id/", authed, staff, h.patchBook)
	books.DELETE("/:id/", authed, staff, h.deleteBook)

	borrowings := r.Group("/borrowings", authed)
	borrowings.GET("/", h.listBorrowings)
	borrowings.POST("/", h.createBorrowing)
	borrowings.GET("/overdue/", staff, h.listOverdue)
	borrowings.GET("/:id/", h.getBorrowing)
	borrowings.POST("/:id/return/", h.returnBorrowing)

	// The checkout callbacks are browser redirects from the payment provider
	// and carry no credentials. :id is the borrowing there.
	payments := r.Group("/payments")
	payments.GET("/", authed, h.listPayments)
	payments.GET("/:id/", authed, h.getPayment)
	payments.GET("/:id/success_payment/", h.paymentSuccess)
	payments.GET("/:id/cancel_payment/", h.paymentCancel)
}

func (h *LibraryHandler) health(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			h.log.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
