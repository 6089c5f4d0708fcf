package checkpoint

import (
	"context"

	tokenmodels "warden/internal/tokens/models"
	id "warden/pkg/domain"
)

const NameActivation = "activation"

// ActivationLookup reports a user's activation state.
type ActivationLookup interface {
	ActivationState(ctx context.Context, userID id.UserID) (tokenmodels.ActivationState, error)
}

// Activation rejects users without a completed activation.
type Activation struct {
	lookup ActivationLookup
}

func NewActivation(lookup ActivationLookup) *Activation {
	return &Activation{lookup: lookup}
}

func (a *Activation) Name() string { return NameActivation }

func (a *Activation) Login(ctx context.Context, user User, _ Credentials) (*Rejection, error) {
	return a.Check(ctx, user)
}

func (a *Activation) Check(ctx context.Context, user User) (*Rejection, error) {
	state, err := a.lookup.ActivationState(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if state != tokenmodels.ActivationActivated {
		return &Rejection{Reason: ReasonNotActivated, Checkpoint: NameActivation}, nil
	}
	return nil, nil
}
