package exchangeroute

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/settlement/internal/ledger"
	"github.com/congo-pay/settlement/internal/money"
)

func setup(t *testing.T) (ledger.Store, ledger.Participant, ledger.Participant) {
	t.Helper()
	store := ledger.NewInMemory()
	ctx := context.Background()
	payer, err := store.CreateParticipant(ctx, ledger.Participant{Balance: money.Zero("EUR")})
	if err != nil {
		t.Fatalf("create payer: %v", err)
	}
	other, err := store.CreateParticipant(ctx, ledger.Participant{Balance: money.Zero("EUR")})
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	return store, payer, other
}

func TestResolveReturnsGatewayTokens(t *testing.T) {
	store, payer, _ := setup(t)
	ctx := context.Background()
	route, _ := store.CreateRoute(ctx, ledger.ExchangeRoute{
		ParticipantID: payer.ID, Network: ledger.NetworkStripeCard, RemoteUserID: "cus_1", Address: "card_1",
	})

	funding, err := NewResolver(store).Resolve(ctx, payer.ID, route.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if funding.Customer != "cus_1" || funding.Source != "card_1" || funding.RouteID != route.ID {
		t.Fatalf("unexpected funding %+v", funding)
	}
}

func TestResolveRejectsForeignRoute(t *testing.T) {
	store, payer, other := setup(t)
	ctx := context.Background()
	route, _ := store.CreateRoute(ctx, ledger.ExchangeRoute{
		ParticipantID: other.ID, Network: ledger.NetworkStripeCard, RemoteUserID: "cus_2", Address: "card_2",
	})

	if _, err := NewResolver(store).Resolve(ctx, payer.ID, route.ID); !errors.Is(err, ErrRouteNotOwned) {
		t.Fatalf("expected ErrRouteNotOwned, got %v", err)
	}
}

func TestResolveRejectsWalletNetworks(t *testing.T) {
	store, payer, _ := setup(t)
	ctx := context.Background()
	route, _ := store.CreateRoute(ctx, ledger.ExchangeRoute{
		ParticipantID: payer.ID, Network: ledger.NetworkMangoWire, Address: "x",
	})

	if _, err := NewResolver(store).Resolve(ctx, payer.ID, route.ID); !errors.Is(err, ErrNotChargeable) {
		t.Fatalf("expected ErrNotChargeable, got %v", err)
	}
}

func TestForPayerMissingRoute(t *testing.T) {
	store, payer, _ := setup(t)
	if _, err := NewResolver(store).ForPayer(context.Background(), payer.ID, ledger.NetworkStripeSDD); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
