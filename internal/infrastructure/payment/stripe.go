package payment

import (
	"context"
	"fmt"
	"storefront-checkout/internal/domain"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type stripeGateway struct {
	sc *client.API
}

func NewStripeGateway(secretKey string) PaymentGateway {
	return &stripeGateway{sc: client.New(secretKey, nil)}
}

func (g *stripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata(MetadataOrderID, req.OrderID.String())
	params.AddMetadata(MetadataOrderNumber, req.OrderNumber)

	pi, err := g.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create intent: %v", domain.ErrGatewayUnavailable, err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *stripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*IntentStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.sc.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve intent %s: %v", domain.ErrGatewayUnavailable, intentID, err)
	}
	return intentStatusFromStripe(pi), nil
}

func intentStatusFromStripe(pi *stripe.PaymentIntent) *IntentStatus {
	s := &IntentStatus{
		ID:             pi.ID,
		State:          IntentPending,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
		OrderID:        parseOrderID(pi.Metadata),
		OrderNumber:    pi.Metadata[MetadataOrderNumber],
	}
	switch {
	case pi.PaymentMethod != nil && pi.PaymentMethod.Type != "":
		s.Method = string(pi.PaymentMethod.Type)
	case len(pi.PaymentMethodTypes) > 0:
		s.Method = pi.PaymentMethodTypes[0]
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		s.State = IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		s.State = IntentFailed
	}
	if pi.LastPaymentError != nil {
		s.FailureReason = pi.LastPaymentError.Msg
		if pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod {
			s.State = IntentFailed
		}
	}
	return s
}
