package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250614-103000",
		Description: "Add encrypted per-user provider API key columns",
		Up: []string{
			`ALTER TABLE users ADD COLUMN openai_api_key_encrypted TEXT`,
			`ALTER TABLE users ADD COLUMN gemini_api_key_encrypted TEXT`,
		},
	})
}
