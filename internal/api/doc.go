// Package api provides the HTTP REST API for Nexus Core.
//
// It exposes the credential lifecycle endpoints (login, refresh, logout,
// logout-everywhere, current user) and the auth gateway middleware that
// protects application routes.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
