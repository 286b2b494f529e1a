package httptransport

import (
	"io"
	"net/http"
	"path/filepath"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/pkg/logging"
	"storefront-checkout/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxWebhookBytes = 1 << 16

type cartLineRequest struct {
	ProductID uuid.UUID  `json:"productId"`
	VariantID *uuid.UUID `json:"variantId"`
	Quantity  int        `json:"quantity"`
}

type checkoutRequest struct {
	Items           []cartLineRequest `json:"items"`
	CouponCode      string            `json:"couponCode"`
	ShippingAddress domain.Address    `json:"shippingAddress"`
	GuestEmail      string            `json:"guestEmail" binding:"omitempty,email"`
}

type lineItemResponse struct {
	ProductID uuid.UUID  `json:"productId"`
	VariantID *uuid.UUID `json:"variantId,omitempty"`
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity"`
	UnitPrice int64      `json:"unitPrice"`
	Digital   bool       `json:"digital"`
}

type discountResponse struct {
	Code   string `json:"code"`
	Amount int64  `json:"amount"`
}

type paymentResponse struct {
	TransactionID  string    `json:"transactionId"`
	Method         string    `json:"method"`
	AmountCaptured int64     `json:"amountCaptured"`
	PaidAt         time.Time `json:"paidAt"`
}

type orderResponse struct {
	ID              uuid.UUID            `json:"id"`
	OrderNumber     string               `json:"orderNumber"`
	Items           []lineItemResponse   `json:"items"`
	Subtotal        int64                `json:"subtotal"`
	Discount        *discountResponse    `json:"discount,omitempty"`
	Total           int64                `json:"total"`
	Currency        string               `json:"currency"`
	Status          domain.OrderStatus   `json:"status"`
	PaymentStatus   domain.PaymentStatus `json:"paymentStatus"`
	Payment         *paymentResponse     `json:"payment,omitempty"`
	ShippingAddress domain.Address       `json:"shippingAddress"`
	TrackingNumber  *string              `json:"trackingNumber,omitempty"`
	Guest           bool                 `json:"guest"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

func toOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.Number,
		Items:           make([]lineItemResponse, 0, len(o.Items)),
		Subtotal:        o.Subtotal,
		Total:           o.Total,
		Currency:        o.Currency,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		ShippingAddress: o.ShippingAddress,
		TrackingNumber:  o.TrackingNumber,
		Guest:           o.IsGuest(),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, lineItemResponse{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Digital:   it.Digital,
		})
	}
	if o.Discount != nil {
		resp.Discount = &discountResponse{Code: o.Discount.Code, Amount: o.Discount.Amount}
	}
	if o.Payment != nil {
		resp.Payment = &paymentResponse{
			TransactionID:  o.Payment.TransactionID,
			Method:         o.Payment.Method,
			AmountCaptured: o.Payment.AmountCaptured,
			PaidAt:         o.Payment.PaidAt,
		}
	}
	return resp
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	lines := make([]service.CartLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, service.CartLine{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
	}

	order, err := s.Orders.CreateOrder(c.Request.Context(), actorFrom(c), service.CheckoutRequest{
		Items:           lines,
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
		GuestEmail:      req.GuestEmail,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := s.Orders.GetOrder(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

type grantResponse struct {
	ID            uuid.UUID          `json:"id"`
	ProductID     uuid.UUID          `json:"productId"`
	Token         string             `json:"token"`
	DownloadCount int                `json:"downloadCount"`
	MaxDownloads  *int               `json:"maxDownloads,omitempty"`
	ExpiresAt     *time.Time         `json:"expiresAt,omitempty"`
	Status        domain.GrantStatus `json:"status"`
}

func (s *Server) orderDownloads(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	grants, err := s.Delivery.GrantsForOrder(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantResponse{
			ID:            g.ID,
			ProductID:     g.ProductID,
			Token:         g.Token,
			DownloadCount: g.DownloadCount,
			MaxDownloads:  g.MaxDownloads,
			ExpiresAt:     g.ExpiresAt,
			Status:        g.Status,
		})
	}
	c.JSON(http.StatusOK, gin.H{"downloads": out})
}

func (s *Server) createPaymentIntent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	pi, err := s.Orders.CreatePaymentIntent(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"intentId":     pi.IntentID,
		"clientSecret": pi.ClientSecret,
		"settled":      pi.Settled,
	})
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := s.Orders.CancelOrder(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

type fulfillmentRequest struct {
	Status         *domain.OrderStatus   `json:"status"`
	TrackingNumber *string               `json:"trackingNumber"`
	PaymentStatus  *domain.PaymentStatus `json:"paymentStatus"`
}

func (s *Server) updateFulfillment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req fulfillmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	order, err := s.Orders.UpdateFulfillment(c.Request.Context(), actorFrom(c), id, domain.FulfillmentUpdate{
		Status:         req.Status,
		TrackingNumber: req.TrackingNumber,
		PaymentStatus:  req.PaymentStatus,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (s *Server) revokeGrant(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.Delivery.RevokeGrant(c.Request.Context(), actorFrom(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// paymentWebhook answers 2xx once the event is applied or deliberately
// ignored, 400 when it cannot be authenticated, and 500 so the processor
// retries after a persistence failure.
func (s *Server) paymentWebhook(c *gin.Context) {
	log := logging.FromContext(c.Request.Context(), s.log)
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}

	ev, err := s.Verifier.Verify(payload, c.GetHeader(payment.SignatureHeader))
	if err != nil {
		log.Warn("webhook_rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{Code: domain.CodeOf(err), Message: "webhook verification failed"}})
		return
	}

	if err := s.Settlement.Settle(c.Request.Context(), ev); err != nil {
		log.Error("webhook_settlement_failed", zap.String("event_id", ev.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorBody{Code: "internal", Message: "internal server error"}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *Server) download(c *gin.Context) {
	ctx := c.Request.Context()
	token := c.Param("token")

	allowed, err := s.Limiter.Allow(ctx, token+":"+c.ClientIP())
	if err != nil {
		// limiter outages fail open
		logging.FromContext(ctx, s.log).Warn("download_rate_limit_unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		writeError(c, domain.ErrRateLimited)
		return
	}

	grant, err := s.Delivery.Redeem(ctx, token)
	if err != nil {
		writeError(c, err)
		return
	}
	path, err := s.Files.Path(grant.FileRef)
	if err != nil {
		writeError(c, domain.ErrFileNotFound)
		return
	}
	c.FileAttachment(path, filepath.Base(grant.FileRef))
}
