package whale

import (
	"time"
)

// OwnerTypeUnknown marks a party the upstream could not attribute to an entity.
// Such parties carry an empty owner.
const OwnerTypeUnknown = "unknown"

// Status codes for a fetch attempt. CodeOK is the only success value; any code that is
// not listed here is the transport status reported by the upstream.
const (
	CodeOK = 200

	CodeConnection      = 1
	CodeTimeout         = 2
	CodeTooManyRedirect = 3
	CodeTransport       = 4
	CodeDecode          = 5
	CodeParse           = 6
	CodeErrorMessage    = 7
	CodeCountMismatch   = 8
	CodeMainKeys        = 9
	CodeRecordKeys      = 10
)

// Party is one side of a transaction.
type Party struct {
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	OwnerType string `json:"owner_type"`
}

// Transaction represents one whale transaction accepted from the upstream feed.
// This is our domain model, independent of the raw response map it was validated from.
type Transaction struct {
	Blockchain       string  `json:"blockchain"`
	Symbol           string  `json:"symbol"`
	ID               string  `json:"id"`
	Type             string  `json:"transaction_type"`
	Hash             string  `json:"hash"`
	From             Party   `json:"from"`
	To               Party   `json:"to"`
	Timestamp        int64   `json:"timestamp"`
	Amount           float64 `json:"amount"`
	AmountUSD        float64 `json:"amount_usd"`
	TransactionCount int     `json:"transaction_count"`
}

// Status is the uniform outcome record of one fetch call.
// It is created once and never mutated afterwards.
type Status struct {
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
	Code             int       `json:"error_code" yaml:"error_code"`
	Message          string    `json:"error_message" yaml:"error_message"`
	TransactionCount int       `json:"transaction_count" yaml:"transaction_count"`
}

// OK reports whether the call succeeded.
func (s Status) OK() bool {
	return s.Code == CodeOK
}

// FetchParams contains the parameters of a single "get next batch" call.
// End and Cursor are omitted from the outbound request when nil.
type FetchParams struct {
	Start    int64
	End      *int64
	APIKey   string
	Cursor   *string
	MinValue int64
	Limit    int
}

// Result is what Fetch returns. Transactions is nil on every failure path and
// empty (not nil) for a successful call that reported no transactions.
type Result struct {
	Success      bool
	Transactions []Transaction
	Status       Status
}
