package middleware

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// SetSentryUser tags the request's Sentry scope with the authenticated user.
func SetSentryUser(ctx context.Context, userID, identifier, ip string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		return
	}
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: userID, Email: identifier, IPAddress: ip})
	})
}
