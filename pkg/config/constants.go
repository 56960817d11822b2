package config

const (
	// EnvPrefix scopes every environment variable the service reads.
	EnvPrefix = "hopround"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "HOPROUND_DB_DSN"
	EnvDBHost = "HOPROUND_DB_HOST"
	EnvDBUser = "HOPROUND_DB_USER"
	EnvDBName = "HOPROUND_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
