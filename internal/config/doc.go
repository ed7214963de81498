// Package config resolves the runtime configuration of the settings
// inspection server from the loaded settings snapshot (the server section
// and the dotenv pairs under envs) and command-line flags, with precedence:
// CLI flags > server.* > envs.* > Defaults.
package config
