package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250601-000000",
		Description: "Initial schema: users, credits, purchases, images, usage, device flows, locks",
		Up: []string{
			// Users authenticated via OAuth. api_key is the bearer credential.
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				provider TEXT NOT NULL,
				provider_id TEXT NOT NULL,
				email TEXT,
				name TEXT,
				api_key TEXT NOT NULL UNIQUE,
				is_admin INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(provider, provider_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_users_api_key ON users(api_key)`,

			// One balance row per user. balance never goes below zero;
			// lifetime counters only grow.
			`CREATE TABLE IF NOT EXISTS user_credits (
				user_id TEXT PRIMARY KEY,
				balance INTEGER NOT NULL DEFAULT 0,
				lifetime_purchased INTEGER NOT NULL DEFAULT 0,
				lifetime_spent INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,

			// Append-only journal. amount is signed; balance_after snapshots
			// the balance at write time.
			`CREATE TABLE IF NOT EXISTS credit_transactions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				type TEXT NOT NULL,
				amount INTEGER NOT NULL,
				balance_after INTEGER NOT NULL,
				description TEXT NOT NULL,
				reference_id TEXT,
				created_at TEXT NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_transactions_user ON credit_transactions(user_id, created_at DESC)`,

			`CREATE TABLE IF NOT EXISTS credit_purchases (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				pack_id TEXT NOT NULL,
				credits INTEGER NOT NULL,
				amount_usd_cents INTEGER NOT NULL,
				payment_provider TEXT NOT NULL,
				payment_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'pending',
				created_at TEXT NOT NULL,
				completed_at TEXT,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_credit_purchases_user ON credit_purchases(user_id, created_at DESC)`,

			// r2_key is {user_id}/{image_id}.png and doubles as the blob key.
			`CREATE TABLE IF NOT EXISTS stored_images (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				r2_key TEXT NOT NULL UNIQUE,
				prompt TEXT NOT NULL,
				provider TEXT NOT NULL DEFAULT '',
				model TEXT NOT NULL,
				size TEXT NOT NULL,
				quality TEXT NOT NULL,
				per_image_credits INTEGER NOT NULL DEFAULT 0,
				cost_cents INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				expires_at TEXT NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_stored_images_user ON stored_images(user_id, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_stored_images_expires ON stored_images(expires_at)`,

			`CREATE TABLE IF NOT EXISTS usage_records (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				provider TEXT NOT NULL DEFAULT '',
				model TEXT NOT NULL,
				request_type TEXT NOT NULL,
				prompt TEXT NOT NULL DEFAULT '',
				image_size TEXT NOT NULL DEFAULT '',
				image_quality TEXT NOT NULL DEFAULT '',
				r2_keys TEXT NOT NULL DEFAULT '',
				text_tokens INTEGER NOT NULL DEFAULT 0,
				image_tokens INTEGER NOT NULL DEFAULT 0,
				output_tokens INTEGER NOT NULL DEFAULT 0,
				total_tokens INTEGER NOT NULL DEFAULT 0,
				image_count INTEGER NOT NULL DEFAULT 0,
				credits_charged INTEGER NOT NULL DEFAULT 0,
				response_time_ms INTEGER NOT NULL DEFAULT 0,
				simplified_cost INTEGER NOT NULL DEFAULT 0,
				input_images_count INTEGER NOT NULL DEFAULT 0,
				error TEXT,
				created_at TEXT NOT NULL,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_records_user ON usage_records(user_id, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_records_created ON usage_records(created_at)`,

			// id is our opaque handle; device_code is the upstream provider's.
			`CREATE TABLE IF NOT EXISTS device_auth_flows (
				id TEXT PRIMARY KEY,
				device_code TEXT NOT NULL,
				user_code TEXT NOT NULL,
				client_type TEXT NOT NULL,
				provider TEXT NOT NULL,
				user_id TEXT,
				expires_at TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_device_auth_flows_expires ON device_auth_flows(expires_at)`,

			// One in-flight generation per user. Stale rows are reclaimed
			// after the lock TTL.
			`CREATE TABLE IF NOT EXISTS user_locks (
				user_id TEXT PRIMARY KEY,
				acquired_at TEXT NOT NULL
			)`,
		},
	})
}
