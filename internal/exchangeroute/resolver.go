package exchangeroute

import (
	"context"
	"errors"
	"fmt"

	"github.com/congo-pay/settlement/internal/ledger"
)

var (
	// ErrRouteNotOwned is returned when a payer tries to use someone else's route.
	ErrRouteNotOwned = errors.New("route does not belong to payer")

	// ErrNotChargeable is returned for routes that cannot fund a card or debit charge.
	ErrNotChargeable = errors.New("route cannot fund a charge")
)

// Routes is the subset of the store the resolver reads.
type Routes interface {
	Route(ctx context.Context, id string) (ledger.ExchangeRoute, error)
	RouteFor(ctx context.Context, participantID, network string) (ledger.ExchangeRoute, error)
}

// Funding holds the gateway tokens a charge is funded with.
type Funding struct {
	RouteID  string
	Network  string
	Customer string
	Source   string
}

// Resolver maps stored routes to gateway funding tokens.
type Resolver struct {
	routes Routes
}

// NewResolver builds a route resolver.
func NewResolver(routes Routes) *Resolver {
	return &Resolver{routes: routes}
}

// Resolve returns the customer and source tokens of a payer's route.
func (r *Resolver) Resolve(ctx context.Context, payerID, routeID string) (Funding, error) {
	route, err := r.routes.Route(ctx, routeID)
	if err != nil {
		return Funding{}, err
	}
	return toFunding(payerID, route)
}

// ForPayer resolves the payer's most recent route on network.
func (r *Resolver) ForPayer(ctx context.Context, payerID, network string) (Funding, error) {
	route, err := r.routes.RouteFor(ctx, payerID, network)
	if err != nil {
		return Funding{}, err
	}
	return toFunding(payerID, route)
}

func toFunding(payerID string, route ledger.ExchangeRoute) (Funding, error) {
	if route.ParticipantID != payerID {
		return Funding{}, fmt.Errorf("%w: route %s", ErrRouteNotOwned, route.ID)
	}
	if !route.IsStripe() {
		return Funding{}, fmt.Errorf("%w: network %s", ErrNotChargeable, route.Network)
	}
	return Funding{
		RouteID:  route.ID,
		Network:  route.Network,
		Customer: route.RemoteUserID,
		Source:   route.Address,
	}, nil
}
