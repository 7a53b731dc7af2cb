package funding

import (
	"context"

	"github.com/google/uuid"
)

// Acquirer connects to the card processor that moves money on and off wallets.
type Acquirer interface {
	AuthorizeCardIn(ctx context.Context, input CardInAuthorization) (AuthorizationDecision, error)
	AuthorizeCardOut(ctx context.Context, input CardOutAuthorization) (AuthorizationDecision, error)
}

// AuthorizationDecision is the processor's answer.
type AuthorizationDecision struct {
	Reference string
	Status    string
}

// CardInAuthorization asks the processor to charge a card.
type CardInAuthorization struct {
	CardNumber string
	Expiry     string
	CVV        string
	Amount     int64
}

// CardOutAuthorization asks the processor to push funds to a card.
type CardOutAuthorization struct {
	CardNumber string
	Amount     int64
}

const statusApproved = "approved"

// StaticAcquirer approves everything. It backs development runs and tests.
type StaticAcquirer struct{}

// AuthorizeCardIn approves the charge with a synthetic reference.
func (StaticAcquirer) AuthorizeCardIn(_ context.Context, _ CardInAuthorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: statusApproved}, nil
}

// AuthorizeCardOut approves the payout with a synthetic reference.
func (StaticAcquirer) AuthorizeCardOut(_ context.Context, _ CardOutAuthorization) (AuthorizationDecision, error) {
	return AuthorizationDecision{Reference: uuid.NewString(), Status: statusApproved}, nil
}
