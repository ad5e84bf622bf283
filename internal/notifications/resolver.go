package notifications

import (
	"context"
	"strings"
)

// Resolver maps an event context to the identities that should receive it.
type Resolver interface {
	Resolve(ctx context.Context, deviceID, actor string) []string
}

// ActorResolver targets the acting principal only.
type ActorResolver struct{}

// Resolve implements Resolver.
func (ActorResolver) Resolve(_ context.Context, _ string, actor string) []string {
	return normaliseRecipients([]string{actor})
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, deviceID, actor string) []string

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, deviceID, actor string) []string {
	return normaliseRecipients(f(ctx, deviceID, actor))
}

// normaliseRecipients trims entries, drops empty ones and removes duplicates while
// preserving first-occurrence order.
func normaliseRecipients(recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		recipient = strings.TrimSpace(recipient)
		if recipient == "" || strings.Contains(recipient, "/") {
			continue
		}
		if _, ok := seen[recipient]; ok {
			continue
		}
		seen[recipient] = struct{}{}
		out = append(out, recipient)
	}
	return out
}
