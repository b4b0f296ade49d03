package database

// Queries holds the SQL used by the warehouse. Placeholders are written as
// '?' and rebound for the driver; Insert uses sqlx named parameters.
//
// Statistics takes (window start, window end, min count) and must return
// entity_id, median_amount, average_amount and transaction_count.
// Records takes (entity id, window start, window end).
type Queries struct {
	Statistics string
	Records    string
	Insert     string
}

const schema = `
	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		transaction_date TIMESTAMP NOT NULL,
		payment_method TEXT,
		status TEXT
	)
`

const schemaIndex = `
	CREATE INDEX IF NOT EXISTS transactions_entity_date_idx
	ON transactions (entity_id, transaction_date)
`

const recordsQuery = `
	SELECT
		transaction_id, entity_id, amount, currency, transaction_date,
		COALESCE(payment_method, '') AS payment_method,
		COALESCE(status, '') AS status
	FROM transactions
	WHERE entity_id = ? AND transaction_date >= ? AND transaction_date < ? AND amount > 0
	ORDER BY transaction_date, transaction_id
`

const insertQuery = `
	INSERT INTO transactions (
		transaction_id, entity_id, amount, currency, transaction_date, payment_method, status
	) VALUES (
		:transaction_id, :entity_id, :amount, :currency, :transaction_date, :payment_method, :status
	)
	ON CONFLICT (transaction_id)
	DO UPDATE SET
		entity_id = EXCLUDED.entity_id,
		amount = EXCLUDED.amount,
		currency = EXCLUDED.currency,
		transaction_date = EXCLUDED.transaction_date,
		payment_method = EXCLUDED.payment_method,
		status = EXCLUDED.status
`

// PostgresQueries uses percentile_cont for the median
func PostgresQueries() Queries {
	return Queries{
		Statistics: `
			SELECT
				entity_id,
				percentile_cont(0.5) WITHIN GROUP (ORDER BY amount) AS median_amount,
				AVG(amount)::DOUBLE PRECISION AS average_amount,
				COUNT(*) AS transaction_count
			FROM transactions
			WHERE transaction_date >= ? AND transaction_date < ? AND amount > 0
			GROUP BY entity_id
			HAVING COUNT(*) >= ?
		`,
		Records: recordsQuery,
		Insert:  insertQuery,
	}
}

// SQLiteQueries computes the median with window functions
func SQLiteQueries() Queries {
	return Queries{
		Statistics: `
			WITH ranked AS (
				SELECT
					entity_id,
					amount,
					ROW_NUMBER() OVER (PARTITION BY entity_id ORDER BY amount) AS rn,
					COUNT(*) OVER (PARTITION BY entity_id) AS cnt
				FROM transactions
				WHERE transaction_date >= ? AND transaction_date < ? AND amount > 0
			)
			SELECT
				entity_id,
				AVG(CASE WHEN rn IN ((cnt + 1) / 2, (cnt + 2) / 2) THEN amount END) AS median_amount,
				AVG(amount) AS average_amount,
				COUNT(*) AS transaction_count
			FROM ranked
			GROUP BY entity_id
			HAVING COUNT(*) >= ?
		`,
		Records: recordsQuery,
		Insert:  insertQuery,
	}
}
