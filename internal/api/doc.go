// Package api is the demo HTTP server around an authcore.Engine.
//
// It exposes login, refresh, logout, /auth/me and password change for any subject, and
// user and session management for admins:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// All routes live under /api/v1. Health and metrics are served at the root.
package api
