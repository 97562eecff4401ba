package mangopay

import "github.com/congo-pay/settlement/internal/gateway"

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type funds struct {
	Currency string `json:"Currency"`
	Amount   int64  `json:"Amount"`
}

type payoutResource struct {
	ID            string `json:"Id"`
	AuthorID      string `json:"AuthorId"`
	Status        string `json:"Status"`
	ResultCode    string `json:"ResultCode"`
	ResultMessage string `json:"ResultMessage"`
	Tag           string `json:"Tag"`
}

func (r payoutResource) toGateway() gateway.Payout {
	return gateway.Payout{
		ID:            r.ID,
		AuthorID:      r.AuthorID,
		Status:        r.Status,
		ResultCode:    r.ResultCode,
		ResultMessage: r.ResultMessage,
		Tag:           r.Tag,
	}
}

type refundResource struct {
	ID                   string `json:"Id"`
	AuthorID             string `json:"AuthorId"`
	Status               string `json:"Status"`
	ResultCode           string `json:"ResultCode"`
	ResultMessage        string `json:"ResultMessage"`
	InitialTransactionID string `json:"InitialTransactionId"`
	DebitedFunds         funds  `json:"DebitedFunds"`
	Fees                 funds  `json:"Fees"`
	RefundReason         struct {
		RefundReasonType    string `json:"RefundReasonType"`
		RefundReasonMessage string `json:"RefundReasonMessage"`
	} `json:"RefundReason"`
}

func (r refundResource) toGateway() gateway.Refund {
	return gateway.Refund{
		ID:                   r.ID,
		AuthorID:             r.AuthorID,
		Status:               r.Status,
		ResultCode:           r.ResultCode,
		ResultMessage:        r.ResultMessage,
		InitialTransactionID: r.InitialTransactionID,
		ReasonMessage:        r.RefundReason.RefundReasonMessage,
		DebitedFunds:         r.DebitedFunds.Amount,
		Fees:                 r.Fees.Amount,
		Currency:             r.DebitedFunds.Currency,
	}
}

type payinResource struct {
	ID            string `json:"Id"`
	AuthorID      string `json:"AuthorId"`
	Status        string `json:"Status"`
	ResultCode    string `json:"ResultCode"`
	ResultMessage string `json:"ResultMessage"`
	PaymentType   string `json:"PaymentType"`
	Tag           string `json:"Tag"`
}

func (r payinResource) toGateway() gateway.Payin {
	return gateway.Payin{
		ID:            r.ID,
		AuthorID:      r.AuthorID,
		Status:        r.Status,
		ResultCode:    r.ResultCode,
		ResultMessage: r.ResultMessage,
		PaymentType:   r.PaymentType,
		Tag:           r.Tag,
	}
}
