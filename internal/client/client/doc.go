// Package client talks to the authkeeper gRPC service on behalf of the CLI.
//
// GRPCClient keeps the session's token pair, sends the access token with
// the protected calls (Me, Logout), and when one of them comes back
// Unauthenticated it refreshes the pair once and retries. The pair is
// persisted through a TokenStore; SessionStore keeps it in a local SQLite
// file so that separate CLI invocations share one session.
//
// Failures are mapped onto ErrUnauthorized, ErrRejected and ErrUnavailable,
// which callers match with errors.Is.
package client
