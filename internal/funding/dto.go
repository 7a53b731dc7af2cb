package funding

// CardInRequest captures user-provided data to fund a wallet from a card.
type CardInRequest struct {
	CardNumber string `json:"card_number" validate:"required,numeric,min=12,max=19"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	ClientTxID string `json:"client_tx_id" validate:"omitempty,max=64"`
}

// CardOutRequest captures withdrawal details to push funds to a card.
type CardOutRequest struct {
	CardNumber string `json:"card_number" validate:"required,numeric,min=12,max=19"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	ClientTxID string `json:"client_tx_id" validate:"omitempty,max=64"`
}

// FundingResponse represents the API response for card funding actions.
type FundingResponse struct {
	TransactionID     string `json:"transaction_id"`
	Status            string `json:"status"`
	Currency          string `json:"currency"`
	WalletBalance     int64  `json:"wallet_balance"`
	AcquirerReference string `json:"acquirer_reference"`
}
