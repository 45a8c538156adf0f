package nats

import (
	"strings"
	"time"

	"github.com/brojonat/whalealert/service/db"
)

// WhaleEvent represents a stored whale transaction published to NATS.
// This is published to the subject "whales.{blockchain}" in JetStream.
type WhaleEvent struct {
	// Transaction identifiers
	Blockchain string `json:"blockchain"`
	Symbol     string `json:"symbol"`
	ID         string `json:"id"`
	Type       string `json:"transaction_type"`
	Hash       string `json:"hash"`

	// Parties
	FromAddress   string `json:"from_address"`
	FromOwner     string `json:"from_owner"`
	FromOwnerType string `json:"from_owner_type"`
	ToAddress     string `json:"to_address"`
	ToOwner       string `json:"to_owner"`
	ToOwnerType   string `json:"to_owner_type"`

	// Amounts
	Amount           float64 `json:"amount"`
	AmountUSD        float64 `json:"amount_usd"`
	TransactionCount int     `json:"transaction_count"`

	// Timing information
	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// FromRow converts a stored row to a WhaleEvent for publishing.
func FromRow(row db.Row) *WhaleEvent {
	return &WhaleEvent{
		Blockchain:       row.Blockchain,
		Symbol:           row.Symbol,
		ID:               row.ID,
		Type:             row.Type,
		Hash:             row.Hash,
		FromAddress:      row.FromAddress,
		FromOwner:        row.FromOwner,
		FromOwnerType:    row.FromOwnerType,
		ToAddress:        row.ToAddress,
		ToOwner:          row.ToOwner,
		ToOwnerType:      row.ToOwnerType,
		Amount:           row.Amount,
		AmountUSD:        row.AmountUSD,
		TransactionCount: row.TransactionCount,
		Timestamp:        time.Unix(row.Timestamp, 0).UTC(),
		PublishedAt:      time.Now().UTC(),
	}
}

// Row converts the event back to the stored row shape.
func (e *WhaleEvent) Row() db.Row {
	return db.Row{
		Blockchain:       e.Blockchain,
		Symbol:           e.Symbol,
		ID:               e.ID,
		Type:             e.Type,
		Hash:             e.Hash,
		FromAddress:      e.FromAddress,
		FromOwner:        e.FromOwner,
		FromOwnerType:    e.FromOwnerType,
		ToAddress:        e.ToAddress,
		ToOwner:          e.ToOwner,
		ToOwnerType:      e.ToOwnerType,
		Timestamp:        e.Timestamp.Unix(),
		Amount:           e.Amount,
		AmountUSD:        e.AmountUSD,
		TransactionCount: e.TransactionCount,
	}
}

// Subject returns the subject an event for blockchain is published on.
func Subject(blockchain string) string {
	return SubjectPrefix + SubjectToken(blockchain)
}

// SubjectToken makes a blockchain name safe to use as one subject token.
func SubjectToken(blockchain string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return strings.ToLower(r.Replace(blockchain))
}
