package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"librarylending/internal/middleware"
	"librarylending/internal/models"
	"librarylending/internal/services"
)

func (h *LibraryHandler) listPayments(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	actor, _ := middleware.ActorFrom(c)

	rows, total, err := h.payments.List(c.Request.Context(), actor, page.repo())
	if err != nil {
		h.writeError(c, err)
		return
	}
	writePage(c, page, total, mapViews(rows, newPaymentView))
}

func (h *LibraryHandler) getPayment(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	actor, _ := middleware.ActorFrom(c)

	p, err := h.payments.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPaymentDetailView(p))
}

// paymentSuccess is the provider's success redirect. Repeat deliveries are
// answered the same way as the first.
func (h *LibraryHandler) paymentSuccess(c *gin.Context) {
	borrowingID, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	res, err := h.payments.ConfirmSuccess(c.Request.Context(), borrowingID, c.Query("session_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if res.RefundDue {
		c.JSON(http.StatusConflict, gin.H{"message": services.MsgRefundDue})
		return
	}
	msg := services.MsgPaymentSuccess
	if res.Payment.Type == models.PaymentTypeFine {
		msg = services.MsgFineSuccess
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (h *LibraryHandler) paymentCancel(c *gin.Context) {
	borrowingID, err := pathID(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.payments.Cancel(c.Request.Context(), borrowingID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": services.MsgPaymentCanceled})
}
