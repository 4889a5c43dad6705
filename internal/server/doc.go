// Package server provides HTTP routing, middleware, and OAuth callback
// handling used by the Tidal adapter's authorization code flow.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] runs in the order it was added: the first-added middleware is
// the outermost wrapper and executes first, following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with
// method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback flow. It
// validates the state parameter (CSRF protection), exchanges the
// authorization code for tokens, and sends the result through a channel. It
// only processes one callback to prevent replay attacks.
//
// # Current Usage
//
// When a caller runs the auth command for a provider whose adapter requires
// interactive login, a temporary HTTP server starts on localhost, handles the
// callback, and shuts down after receiving the OAuth token. This is
// collaborator infrastructure for credential acquisition, not part of the
// core federation/sync surface.
package server
