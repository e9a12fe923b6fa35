package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"librarylending/internal/apperr"
	"librarylending/internal/middleware"
	"librarylending/internal/services"
)

type borrowRequest struct {
	Book               string `json:"book" binding:"required,uuid"`
	ExpectedReturnDate string `json:"expected_return_date" binding:"required,datetime=2006-01-02"`
}

func (h *LibraryHandler) listBorrowings(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	q := services.BorrowingQuery{
		ActiveOnly: c.Query("is_active") == "true",
		Page:       page.repo(),
	}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(c, apperr.Validation("user_id", "Must be a valid UUID."))
			return
		}
		q.UserID = &userID
	}
	actor, _ := middleware.ActorFrom(c)

	rows, total, err := h.borrowings.List(c.Request.Context(), actor, q)
	if err != nil {
		h.writeError(c, err)
		return
	}
	writePage(c, page, total, mapViews(rows, newBorrowingListView))
}

func (h *LibraryHandler) listOverdue(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	actor, _ := middleware.ActorFrom(c)

	rows, total, err := h.borrowings.ListOverdue(c.Request.Context(), actor, page.repo())
	if err != nil {
		h.writeError(c, err)
		return
	}
	writePage(c, page, total, mapViews(rows, newBorrowingListView))
}

func (h *LibraryHandler) getBorrowing(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	actor, _ := middleware.ActorFrom(c)

	b, err := h.borrowings.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBorrowingDetailView(b))
}

func (h *LibraryHandler) createBorrowing(c *gin.Context) {
	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}
	// Both fields were checked by the binding tags.
	bookID := uuid.MustParse(req.Book)
	expected, _ := time.Parse(dateLayout, req.ExpectedReturnDate)
	actor, _ := middleware.ActorFrom(c)

	res, err := h.borrowings.Borrow(c.Request.Context(), actor, bookID, expected)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, borrowingCreatedView{
		borrowingView: newBorrowingView(res.Borrowing),
		Payment:       newPaymentView(res.Payment),
	})
}

func (h *LibraryHandler) returnBorrowing(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	actor, _ := middleware.ActorFrom(c)

	res, err := h.borrowings.Return(c.Request.Context(), actor, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if res.Outcome == services.ReturnFineRequired {
		c.JSON(http.StatusBadRequest, gin.H{
			"detail":  services.MsgFineRequired,
			"payment": newPaymentView(res.Fine),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": services.MsgReturned})
}
