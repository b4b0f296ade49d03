package model

import "time"

// TransactionRecord is a single merchant transaction as returned by a DetailSource
type TransactionRecord struct {
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	EntityID      string    `json:"entity_id" db:"entity_id"`
	Amount        float64   `json:"amount" db:"amount"`
	Currency      string    `json:"currency" db:"currency"`
	Timestamp     time.Time `json:"timestamp" db:"transaction_date"`
	PaymentMethod string    `json:"payment_method" db:"payment_method"`
	Status        string    `json:"status" db:"status"`
}

// Window is a half-open time range [Start, End)
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowEndingAt returns the window of the given number of days ending at end
func WindowEndingAt(end time.Time, days int) Window {
	return Window{
		Start: end.AddDate(0, 0, -days),
		End:   end,
	}
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
