package participant

import (
	"time"

	"github.com/congo-pay/settlement/internal/ledger"
)

type createRequest struct {
	Email         string `json:"email"`
	GatewayUserID string `json:"gateway_user_id"`
	Currency      string `json:"currency"`
}

type routeRequest struct {
	Network      string `json:"network"`
	RemoteUserID string `json:"remote_user_id"`
	Address      string `json:"address"`
}

type accountRequest struct {
	Provider string `json:"provider"`
	RemoteID string `json:"remote_id"`
}

type exchangeRequest struct {
	RouteID  string `json:"route_id"`
	Amount   string `json:"amount"`
	Fee      string `json:"fee"`
	Currency string `json:"currency"`
}

type participantResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	GatewayUserID string    `json:"gateway_user_id,omitempty"`
	Balance       string    `json:"balance"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type routeResponse struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participant_id"`
	Network       string `json:"network"`
	RemoteUserID  string `json:"remote_user_id"`
	Address       string `json:"address"`
}

type accountResponse struct {
	PK            string `json:"pk"`
	ParticipantID string `json:"participant_id"`
	Provider      string `json:"provider"`
	RemoteID      string `json:"remote_id"`
}

type exchangeResponse struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	RouteID       string    `json:"route_id"`
	Amount        string    `json:"amount"`
	Fee           string    `json:"fee"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	Tag           string    `json:"tag"`
	Note          string    `json:"note,omitempty"`
	RefundRef     string    `json:"refund_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toParticipantResponse(p ledger.Participant) participantResponse {
	return participantResponse{
		ID:            p.ID,
		Email:         p.Email,
		GatewayUserID: p.GatewayUserID,
		Balance:       p.Balance.Amount.StringFixed(2),
		Currency:      p.Balance.Currency,
		Status:        p.Status,
		CreatedAt:     p.CreatedAt,
	}
}

func toRouteResponse(r ledger.ExchangeRoute) routeResponse {
	return routeResponse{
		ID:            r.ID,
		ParticipantID: r.ParticipantID,
		Network:       r.Network,
		RemoteUserID:  r.RemoteUserID,
		Address:       r.Address,
	}
}

func toAccountResponse(a ledger.PaymentAccount) accountResponse {
	return accountResponse{PK: a.PK, ParticipantID: a.ParticipantID, Provider: a.Provider, RemoteID: a.RemoteID}
}

func toExchangeResponse(e ledger.Exchange) exchangeResponse {
	return exchangeResponse{
		ID:            e.ID,
		ParticipantID: e.ParticipantID,
		RouteID:       e.RouteID,
		Amount:        e.Amount.Amount.StringFixed(2),
		Fee:           e.Fee.Amount.StringFixed(2),
		Currency:      e.Amount.Currency,
		Status:        e.Status,
		Tag:           e.Tag(),
		Note:          e.Note,
		RefundRef:     e.RefundRef,
		CreatedAt:     e.CreatedAt,
	}
}
