package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"librarylending/internal/apperr"
	"librarylending/internal/repositories"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPage keeps (page-1)*page_size inside the range of a SQL OFFSET.
	maxPage = math.MaxInt32 / maxPageSize
)

type pageQuery struct {
	Page     int
	PageSize int
}

func (p pageQuery) repo() repositories.Page {
	return repositories.Page{Limit: p.PageSize, Offset: (p.Page - 1) * p.PageSize}
}

// parsePage reads ?page and ?page_size. Oversized pages are clamped.
func parsePage(c *gin.Context) (pageQuery, error) {
	p := pageQuery{Page: 1, PageSize: defaultPageSize}
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, apperr.Validation("page", "A valid positive integer is required.")
		}
		if n > maxPage {
			return p, apperr.Validation("page", "Invalid page.")
		}
		p.Page = n
	}
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, apperr.Validation("page_size", "A valid positive integer is required.")
		}
		p.PageSize = min(n, maxPageSize)
	}
	return p, nil
}

type pageView[T any] struct {
	Count    int64 `json:"count"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Results  []T   `json:"results"`
}

func writePage[T any](c *gin.Context, p pageQuery, total int64, results []T) {
	if results == nil {
		results = []T{}
	}
	c.JSON(http.StatusOK, pageView[T]{Count: total, Page: p.Page, PageSize: p.PageSize, Results: results})
}
