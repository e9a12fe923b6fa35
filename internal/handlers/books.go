package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"librarylending/internal/middleware"
	"librarylending/internal/models"
	"librarylending/internal/services"
)

type bookRequest struct {
	Title     string           `json:"title" binding:"required,max=255"`
	Author    string           `json:"author" binding:"required,max=255"`
	Cover     string           `json:"cover" binding:"required,cover"`
	Inventory *int             `json:"inventory" binding:"required,min=0"`
	DailyFee  *decimal.Decimal `json:"daily_fee" binding:"required"`
}

func (r bookRequest) input() services.BookInput {
	return services.BookInput{
		Title:     r.Title,
		Author:    r.Author,
		Cover:     models.CoverType(r.Cover),
		Inventory: *r.Inventory,
		DailyFee:  *r.DailyFee,
	}
}

type bookPatchRequest struct {
	Title     *string          `json:"title" binding:"omitempty,max=255"`
	Author    *string          `json:"author" binding:"omitempty,max=255"`
	Cover     *string          `json:"cover" binding:"omitempty,cover"`
	Inventory *int             `json:"inventory" binding:"omitempty,min=0"`
	DailyFee  *decimal.Decimal `json:"daily_fee"`
}

func (r bookPatchRequest) patch() services.BookPatch {
	p := services.BookPatch{
		Title:     r.Title,
		Author:    r.Author,
		Inventory: r.Inventory,
		DailyFee:  r.DailyFee,
	}
	if r.Cover != nil {
		cover := models.CoverType(*r.Cover)
		p.Cover = &cover
	}
	return p
}

func (h *LibraryHandler) listBooks(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	books, total, err := h.catalog.ListBooks(c.Request.Context(), page.repo())
	if err != nil {
		h.writeError(c, err)
		return
	}
	writePage(c, page, total, mapViews(books, newBookView))
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	book, err := h.catalog.GetBook(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookView(book))
}

func (h *LibraryHandler) createBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}
	actor, _ := middleware.ActorFrom(c)

	book, err := h.catalog.CreateBook(c.Request.Context(), actor, req.input())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newBookView(book))
}

func (h *LibraryHandler) updateBook(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}
	actor, _ := middleware.ActorFrom(c)

	book, err := h.catalog.UpdateBook(c.Request.Context(), actor, id, req.input())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookView(book))
}

func (h *LibraryHandler) patchBook(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var req bookPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, bindError(err))
		return
	}
	actor, _ := middleware.ActorFrom(c)

	book, err := h.catalog.PatchBook(c.Request.Context(), actor, id, req.patch())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookView(book))
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	actor, _ := middleware.ActorFrom(c)

	if err := h.catalog.DeleteBook(c.Request.Context(), actor, id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
