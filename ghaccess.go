package ghaccess

// Package ghaccess is the GitHub API access layer used by agent tool handlers.
//
// # Packages
//
// Import individual packages directly:
//
//   - github.com/MyCarrier-DevOps/ghaccess/auth - Credential strategies, App JWT signing, installation token cache
//   - github.com/MyCarrier-DevOps/ghaccess/github - Request executor, retries, pagination, repository context
//   - github.com/MyCarrier-DevOps/ghaccess/github/githubtest - Fake GitHub API and resolver mocks for tests
//   - github.com/MyCarrier-DevOps/ghaccess/config - Environment configuration
//   - github.com/MyCarrier-DevOps/ghaccess/vault - Vault-backed App private keys
//   - github.com/MyCarrier-DevOps/ghaccess/logger - Structured logging interfaces
//
// The ghaccess command in cmd/ghaccess exercises the layer from a shell.

// Version is set at build time via ldflags. It is reported in the User-Agent header.
var Version = "dev"

// UserAgent returns the User-Agent sent with every GitHub request.
func UserAgent() string {
	return "ghaccess/" + Version
}
