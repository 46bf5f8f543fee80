// Package flows contains the orchestration for every token lifecycle operation.
//
// Each flow function (RunLogin, RunVerify, RunRefresh, RunLogout) accepts a typed
// dependency struct and returns a result carrying a failure kind. The root engine maps
// failure kinds to sentinel errors, metrics and audit events.
//
// Flow functions hold no state and never import the root package.
package flows
