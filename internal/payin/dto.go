package payin

import (
	"time"

	"github.com/congo-pay/settlement/internal/ledger"
)

// ChargeRequest captures a payer's request to pay a payee.
type ChargeRequest struct {
	PayerID     string `json:"payer_id"`
	RouteID     string `json:"route_id"` // optional, defaults to the payer's latest card
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

// PayinResponse represents a payin and its transfer in API responses.
type PayinResponse struct {
	ID            string            `json:"id"`
	PayerID       string            `json:"payer_id"`
	RouteID       string            `json:"route_id"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	RemoteID      string            `json:"remote_id,omitempty"`
	Error         string            `json:"error,omitempty"`
	AmountSettled string            `json:"amount_settled,omitempty"`
	Fee           string            `json:"fee,omitempty"`
	Transfer      *TransferResponse `json:"transfer,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TransferResponse represents a payin transfer in API responses.
type TransferResponse struct {
	ID          string `json:"id"`
	PayinID     string `json:"payin_id"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	RemoteID    string `json:"remote_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

func toResponse(p ledger.Payin, pt *ledger.PayinTransfer) PayinResponse {
	resp := PayinResponse{
		ID:        p.ID,
		PayerID:   p.PayerID,
		RouteID:   p.RouteID,
		Amount:    p.Amount.Amount.StringFixed(2),
		Currency:  p.Amount.Currency,
		Status:    p.Status,
		RemoteID:  p.RemoteID,
		Error:     p.Error,
		UpdatedAt: p.UpdatedAt,
	}
	if p.AmountSettled != nil {
		resp.AmountSettled = p.AmountSettled.String()
	}
	if p.Fee != nil {
		resp.Fee = p.Fee.String()
	}
	if pt != nil {
		tr := toTransferResponse(*pt)
		resp.Transfer = &tr
	}
	return resp
}

func toTransferResponse(pt ledger.PayinTransfer) TransferResponse {
	return TransferResponse{
		ID:          pt.ID,
		PayinID:     pt.PayinID,
		Destination: pt.Destination,
		Amount:      pt.Amount.Amount.StringFixed(2),
		Currency:    pt.Amount.Currency,
		Status:      pt.Status,
		RemoteID:    pt.RemoteID,
		Error:       pt.Error,
	}
}
