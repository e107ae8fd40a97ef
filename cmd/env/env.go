package env

const (
	// Prefix is the common ENV variable prefix for the service
	Prefix = "P2PANEL"

	// DBURLSuffix is the ENV suffix for the Postgres connection string
	DBURLSuffix = "_DB_URL"
)
