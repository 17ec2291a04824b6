package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// LocalGateway is an in-process Gateway for local runs without a PSP account. Sessions stay
// pending until Settle is called.
type LocalGateway struct {
	mu       sync.Mutex
	baseURL  string
	clock    func() time.Time
	sessions map[string]SessionState
}

var _ Gateway = (*LocalGateway)(nil)

// NewLocalGateway constructs a LocalGateway whose redirect URLs start with baseURL.
func NewLocalGateway(baseURL string, clock func() time.Time) *LocalGateway {
	if clock == nil {
		clock = time.Now
	}
	return &LocalGateway{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clock:    clock,
		sessions: map[string]SessionState{},
	}
}

func (g *LocalGateway) Provider() string { return "local" }

func (g *LocalGateway) CreateSession(_ context.Context, order domain.Order) (Session, error) {
	now := g.clock().UTC()
	id := "ls_" + strings.ToLower(ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String())

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[id] = SessionState{SessionID: id, IntentID: "li_" + order.ID, Status: StatusPending, Amount: order.GrandTotal}
	return Session{
		ID:          id,
		Provider:    g.Provider(),
		RedirectURL: fmt.Sprintf("%s/pay/%s", g.baseURL, id),
		IntentID:    "li_" + order.ID,
		ExpiresAt:   now.Add(24 * time.Hour),
	}, nil
}

func (g *LocalGateway) LookupSession(_ context.Context, sessionID string) (SessionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.sessions[sessionID]
	if !ok {
		return SessionState{}, fmt.Errorf("local: session %s: %w", sessionID, ErrSessionNotFound)
	}
	return state, nil
}

func (g *LocalGateway) Refund(_ context.Context, intentID string, _ int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, state := range g.sessions {
		if state.IntentID == intentID && state.Status == StatusSucceeded {
			return nil
		}
	}
	return fmt.Errorf("local: no settled payment for intent %s", intentID)
}

// Settle records the outcome of a session as if the customer had finished the hosted page.
func (g *LocalGateway) Settle(sessionID string, status Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.sessions[sessionID]
	if !ok {
		return fmt.Errorf("local: session %s: %w", sessionID, ErrSessionNotFound)
	}
	state.Status = status
	g.sessions[sessionID] = state
	return nil
}
