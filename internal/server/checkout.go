package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/dentaldesk/internal/billing/domain"
	obscontext "github.com/smallbiznis/dentaldesk/internal/observability/context"
)

func (s *Server) HandleCreateCheckoutSession(c *gin.Context) {
	var req billingdomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	c.Request = c.Request.WithContext(obscontext.WithClinicID(c.Request.Context(), req.ClinicID))
	session, err := s.checkoutSvc.CreateSession(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}
