package db

import (
	"fmt"
	"strings"

	"github.com/brojonat/whalealert/service/whale"
)

// Column describes one typed column of a partition.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Column types used by the partition schema.
const (
	TypeText    = "TEXT"
	TypeBigint  = "BIGINT"
	TypeDouble  = "DOUBLE PRECISION"
	TypeInteger = "INTEGER"
)

// ColumnTimestamp is the column range queries run against.
const ColumnTimestamp = "timestamp"

// Schema is the fixed 15-column layout shared by every partition.
var Schema = []Column{
	{Name: "blockchain", Type: TypeText},
	{Name: "symbol", Type: TypeText},
	{Name: "id", Type: TypeText},
	{Name: "transaction_type", Type: TypeText},
	{Name: "hash", Type: TypeText},
	{Name: "from_address", Type: TypeText},
	{Name: "from_owner", Type: TypeText},
	{Name: "from_owner_type", Type: TypeText},
	{Name: "to_address", Type: TypeText},
	{Name: "to_owner", Type: TypeText},
	{Name: "to_owner_type", Type: TypeText},
	{Name: ColumnTimestamp, Type: TypeBigint},
	{Name: "amount", Type: TypeDouble},
	{Name: "amount_usd", Type: TypeDouble},
	{Name: "transaction_count", Type: TypeInteger},
}

// Row is a transaction flattened into the partition schema.
type Row struct {
	Blockchain       string  `json:"blockchain" db:"blockchain"`
	Symbol           string  `json:"symbol" db:"symbol"`
	ID               string  `json:"id" db:"id"`
	Type             string  `json:"transaction_type" db:"transaction_type"`
	Hash             string  `json:"hash" db:"hash"`
	FromAddress      string  `json:"from_address" db:"from_address"`
	FromOwner        string  `json:"from_owner" db:"from_owner"`
	FromOwnerType    string  `json:"from_owner_type" db:"from_owner_type"`
	ToAddress        string  `json:"to_address" db:"to_address"`
	ToOwner          string  `json:"to_owner" db:"to_owner"`
	ToOwnerType      string  `json:"to_owner_type" db:"to_owner_type"`
	Timestamp        int64   `json:"timestamp" db:"timestamp"`
	Amount           float64 `json:"amount" db:"amount"`
	AmountUSD        float64 `json:"amount_usd" db:"amount_usd"`
	TransactionCount int     `json:"transaction_count" db:"transaction_count"`
}

// Values returns the row's fields in Schema order.
func (r Row) Values() []any {
	return []any{
		r.Blockchain, r.Symbol, r.ID, r.Type, r.Hash,
		r.FromAddress, r.FromOwner, r.FromOwnerType,
		r.ToAddress, r.ToOwner, r.ToOwnerType,
		r.Timestamp, r.Amount, r.AmountUSD, r.TransactionCount,
	}
}

// intColumn returns the value of an integer column.
func (r Row) intColumn(name string) (int64, bool) {
	switch name {
	case ColumnTimestamp:
		return r.Timestamp, true
	case "transaction_count":
		return int64(r.TransactionCount), true
	default:
		return 0, false
	}
}

// FlattenTransaction validates t and flattens it into a Row. The symbol is
// upper-cased and owners of unknown parties are blanked.
func FlattenTransaction(t whale.Transaction) (Row, error) {
	if err := validateTransaction(t); err != nil {
		return Row{}, err
	}
	row := Row{
		Blockchain:       t.Blockchain,
		Symbol:           strings.ToUpper(t.Symbol),
		ID:               t.ID,
		Type:             t.Type,
		Hash:             t.Hash,
		FromAddress:      t.From.Address,
		FromOwner:        t.From.Owner,
		FromOwnerType:    t.From.OwnerType,
		ToAddress:        t.To.Address,
		ToOwner:          t.To.Owner,
		ToOwnerType:      t.To.OwnerType,
		Timestamp:        t.Timestamp,
		Amount:           t.Amount,
		AmountUSD:        t.AmountUSD,
		TransactionCount: t.TransactionCount,
	}
	if row.FromOwnerType == whale.OwnerTypeUnknown {
		row.FromOwner = ""
	}
	if row.ToOwnerType == whale.OwnerTypeUnknown {
		row.ToOwner = ""
	}
	return row, nil
}

func validateTransaction(t whale.Transaction) error {
	required := []struct {
		name  string
		value string
	}{
		{"blockchain", t.Blockchain},
		{"symbol", t.Symbol},
		{"id", t.ID},
		{"transaction_type", t.Type},
		{"hash", t.Hash},
		{"from.address", t.From.Address},
		{"from.owner_type", t.From.OwnerType},
		{"to.address", t.To.Address},
		{"to.owner_type", t.To.OwnerType},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%w: missing %s", ErrInvalidRecord, f.name)
		}
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
	}
	if t.From.OwnerType != whale.OwnerTypeUnknown && t.From.Owner == "" {
		return fmt.Errorf("%w: missing from.owner", ErrInvalidRecord)
	}
	if t.To.OwnerType != whale.OwnerTypeUnknown && t.To.Owner == "" {
		return fmt.Errorf("%w: missing to.owner", ErrInvalidRecord)
	}
	return nil
}
