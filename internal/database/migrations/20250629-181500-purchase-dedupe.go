package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250629-181500",
		Description: "Reject replayed payment notifications via unique provider payment ids",
		Up: []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_purchases_payment
				ON credit_purchases(payment_provider, payment_id)
				WHERE payment_id != ''`,
		},
	})
}
