package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/dentaldesk/internal/billing/domain"
)

const maxWebhookBodyBytes = 1 << 20

// HandleStripeWebhook reads the body untouched so the signature can be
// checked over the exact bytes. Every failure answers 400 so the provider
// redelivers or surfaces the event in its dashboard.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		s.rejectWebhook(c, billingdomain.ErrInvalidPayload)
		return
	}

	if _, err := s.webhookSvc.Ingest(c.Request.Context(), payload, c.Request.Header); err != nil {
		s.rejectWebhook(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *Server) rejectWebhook(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": webhookErrorMessage(err)})
}
