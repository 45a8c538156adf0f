package whale

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Top-level response keys.
const (
	keyResult       = "result"
	keyCursor       = "cursor"
	keyCount        = "count"
	keyTransactions = "transactions"
	keyMessage      = "message"
)

// checkResponse validates a fully read response body. On success it returns the
// normalized transactions, the pagination cursor and the reported count.
func checkResponse(statusCode int, body []byte) ([]Transaction, string, int, *Outcome) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			o := Fatal(CodeDecode, "Internal error: Error parsing JSON object from received response")
			return nil, "", 0, &o
		}
		o := Fatal(CodeParse, fmt.Sprintf(
			"Internal error: Exception %v when parsing JSON object from received response. Response = %s", err, body))
		return nil, "", 0, &o
	}

	if statusCode != http.StatusOK {
		o := parseErrorResponse(fields, statusCode, body)
		return nil, "", 0, &o
	}

	cursor, count, txnsRaw, outcome := checkMainKeys(fields, body)
	if outcome != nil {
		return nil, "", 0, outcome
	}
	if count == 0 {
		return []Transaction{}, cursor, 0, nil
	}

	txns := make([]Transaction, 0, len(txnsRaw))
	for _, raw := range txnsRaw {
		txn, err := parseTransaction(raw)
		if err != nil {
			o := Fatal(CodeRecordKeys, fmt.Sprintf(
				"Internal error: Error with transactions JSON keys (%v), bad transaction = %s", err, raw))
			return nil, "", 0, &o
		}
		txns = append(txns, txn)
	}
	return txns, cursor, count, nil
}

func parseErrorResponse(fields map[string]json.RawMessage, statusCode int, body []byte) Outcome {
	var message string
	raw, ok := fields[keyMessage]
	if ok {
		if err := json.Unmarshal(raw, &message); err == nil {
			return Fatal(statusCode, message)
		}
	}
	return Fatal(CodeErrorMessage, fmt.Sprintf(
		"Internal error: Cannot read message from error response. Response = %s", body))
}

func checkMainKeys(fields map[string]json.RawMessage, body []byte) (string, int, []json.RawMessage, *Outcome) {
	mainKeys := func() *Outcome {
		o := Fatal(CodeMainKeys, fmt.Sprintf("Internal error: Problem parsing main keys. Response = %s", body))
		return &o
	}

	if _, ok := fields[keyResult]; !ok {
		return "", 0, nil, mainKeys()
	}
	rawCursor, ok := fields[keyCursor]
	if !ok {
		return "", 0, nil, mainKeys()
	}
	rawCount, ok := fields[keyCount]
	if !ok {
		return "", 0, nil, mainKeys()
	}

	var count int
	if err := json.Unmarshal(rawCount, &count); err != nil {
		return "", 0, nil, mainKeys()
	}

	var cursor string
	if err := json.Unmarshal(rawCursor, &cursor); err != nil {
		cursor = strings.Trim(string(rawCursor), `"`)
	}

	if count <= 0 {
		return cursor, 0, nil, nil
	}

	rawTxns, ok := fields[keyTransactions]
	if !ok {
		return "", 0, nil, mainKeys()
	}
	var txns []json.RawMessage
	if err := json.Unmarshal(rawTxns, &txns); err != nil {
		return "", 0, nil, mainKeys()
	}
	if len(txns) != count {
		o := Fatal(CodeCountMismatch, fmt.Sprintf(
			"Internal error: Transaction count doesn't match reported count. Response = %s", body))
		return "", 0, nil, &o
	}
	return cursor, count, txns, nil
}

// parseTransaction checks one record for every required key and normalizes it:
// the symbol is upper-cased and unknown owners are blanked.
func parseTransaction(raw json.RawMessage) (Transaction, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return Transaction{}, err
	}

	var (
		txn Transaction
		err error
	)
	if txn.Blockchain, err = stringField(m, "blockchain"); err != nil {
		return Transaction{}, err
	}
	if txn.Symbol, err = stringField(m, "symbol"); err != nil {
		return Transaction{}, err
	}
	if txn.ID, err = stringField(m, "id"); err != nil {
		return Transaction{}, err
	}
	if txn.Type, err = stringField(m, "transaction_type"); err != nil {
		return Transaction{}, err
	}
	if txn.Hash, err = stringField(m, "hash"); err != nil {
		return Transaction{}, err
	}
	if txn.From, err = partyField(m, "from"); err != nil {
		return Transaction{}, err
	}
	if txn.To, err = partyField(m, "to"); err != nil {
		return Transaction{}, err
	}
	ts, err := numberField(m, "timestamp")
	if err != nil {
		return Transaction{}, err
	}
	if txn.Timestamp, err = ts.Int64(); err != nil {
		return Transaction{}, fmt.Errorf("timestamp: %w", err)
	}
	amount, err := numberField(m, "amount")
	if err != nil {
		return Transaction{}, err
	}
	if txn.Amount, err = amount.Float64(); err != nil {
		return Transaction{}, fmt.Errorf("amount: %w", err)
	}
	amountUSD, err := numberField(m, "amount_usd")
	if err != nil {
		return Transaction{}, err
	}
	if txn.AmountUSD, err = amountUSD.Float64(); err != nil {
		return Transaction{}, fmt.Errorf("amount_usd: %w", err)
	}
	count, err := numberField(m, "transaction_count")
	if err != nil {
		return Transaction{}, err
	}
	n, err := count.Int64()
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction_count: %w", err)
	}
	txn.TransactionCount = int(n)

	txn.Symbol = strings.ToUpper(txn.Symbol)
	return txn, nil
}

func partyField(m map[string]json.RawMessage, key string) (Party, error) {
	raw, ok := m[key]
	if !ok {
		return Party{}, fmt.Errorf("missing key %q", key)
	}
	var pm map[string]json.RawMessage
	if err := json.Unmarshal(raw, &pm); err != nil || pm == nil {
		return Party{}, fmt.Errorf("%s: not an object", key)
	}

	var (
		p   Party
		err error
	)
	if p.Address, err = stringField(pm, "address"); err != nil {
		return Party{}, fmt.Errorf("%s: %w", key, err)
	}
	if p.OwnerType, err = stringField(pm, "owner_type"); err != nil {
		return Party{}, fmt.Errorf("%s: %w", key, err)
	}
	if p.OwnerType == OwnerTypeUnknown {
		return p, nil
	}
	if p.Owner, err = stringField(pm, "owner"); err != nil {
		return Party{}, fmt.Errorf("%s: %w", key, err)
	}
	// A known owner type names its owner.
	if p.Owner == "" {
		return Party{}, fmt.Errorf("%s: empty owner for owner_type %q", key, p.OwnerType)
	}
	return p, nil
}

// stringField accepts a JSON string or number; upstream ids are not always quoted.
func stringField(m map[string]json.RawMessage, key string) (string, error) {
	raw, ok := m[key]
	if !ok {
		return "", fmt.Errorf("missing key %q", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("key %q is not a string", key)
}

func numberField(m map[string]json.RawMessage, key string) (json.Number, error) {
	raw, ok := m[key]
	if !ok {
		return "", fmt.Errorf("missing key %q", key)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("key %q is not a number", key)
	}
	return n, nil
}
