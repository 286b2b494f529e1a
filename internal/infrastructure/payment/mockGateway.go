package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"storefront-checkout/internal/domain"
	"sync"

	"github.com/google/uuid"
)

// PayOutcome is what happened when a customer paid a mock intent.
type PayOutcome int

const (
	PayCaptured PayOutcome = iota
	PayDeclined
	// PayCapturedWebhookLost: money moved but the notification never arrives.
	PayCapturedWebhookLost
)

type mockIntent struct {
	status  IntentStatus
	req     IntentRequest
	eventID int
}

// MockGateway is an in-process processor used by the simulator and tests.
type MockGateway struct {
	mu      sync.RWMutex
	intents map[string]*mockIntent
	byKey   map[string]string
	events  int
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		intents: make(map[string]*mockIntent),
		byKey:   make(map[string]string),
	}
}

func (g *MockGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// same idempotency key, same intent
	if id, ok := g.byKey[req.IdempotencyKey]; ok {
		return &Intent{ID: id, ClientSecret: id + "_secret"}, nil
	}

	id := "pi_mock_" + uuid.NewString()
	g.intents[id] = &mockIntent{
		req: req,
		status: IntentStatus{
			ID:          id,
			State:       IntentPending,
			Currency:    req.Currency,
			OrderID:     req.OrderID,
			OrderNumber: req.OrderNumber,
		},
	}
	g.byKey[req.IdempotencyKey] = id
	return &Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *MockGateway) RetrieveIntent(ctx context.Context, intentID string) (*IntentStatus, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	in, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("%w: no such intent %s", domain.ErrGatewayUnavailable, intentID)
	}
	s := in.status
	return &s, nil
}

// Pay completes an intent with a random outcome: 70% captured, 20% declined,
// 10% captured with the webhook lost.
func (g *MockGateway) Pay(intentID string) (domain.PaymentEvent, PayOutcome, error) {
	chance := rand.IntN(100)
	outcome := PayCaptured
	switch {
	case chance < 70:
	case chance < 90:
		outcome = PayDeclined
	default:
		outcome = PayCapturedWebhookLost
	}
	ev, err := g.Resolve(intentID, outcome)
	return ev, outcome, err
}

// Resolve forces an outcome for an intent and returns the event the processor would emit.
func (g *MockGateway) Resolve(intentID string, outcome PayOutcome) (domain.PaymentEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	in, ok := g.intents[intentID]
	if !ok {
		return domain.PaymentEvent{}, fmt.Errorf("no such intent %s", intentID)
	}
	if outcome == PayDeclined {
		in.status.State = IntentFailed
		in.status.FailureReason = "Card Declined"
	} else {
		in.status.State = IntentSucceeded
		in.status.AmountReceived = in.req.Amount
		in.status.Method = "card"
	}
	g.events++
	in.eventID = g.events

	ev := in.status.Event()
	ev.ID = fmt.Sprintf("evt_mock_%d", in.eventID)
	ev.Type = string(in.status.State)
	return ev, nil
}
