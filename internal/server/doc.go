// Package server provides the local HTTP server that completes the Spotify OAuth2 authorization code flow.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [LoggingMiddleware] logs each request without its query string.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] validates the state parameter (CSRF protection), exchanges the authorization code for tokens,
// and sends the result through a channel. It only processes one callback.
//
// # Callback Server
//
// [CallbackServer] binds the redirect URI's host and port before the browser is opened, serves until one result
// arrives or the timeout passes, then shuts down.
package server
