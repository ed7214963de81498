// Package application provides application initialization and dependency wiring.
// It connects the loaded settings store and the logging factory to the API
// handlers, router and HTTP server, keeping the main package focused on CLI
// parsing and orchestration.
package application
