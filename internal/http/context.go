package http

import (
	"context"

	"github.com/example/orgdesk/internal/application"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	deviceIDContextKey  contextKey = "device_id"
)

// ContextWithPrincipal returns a derived context containing the authenticated principal.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from context if available.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	return principal, ok
}

// ContextWithDeviceID records the device authenticated by a device token.
func ContextWithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey, deviceID)
}

// DeviceIDFromContext extracts the authenticated device id.
func DeviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDContextKey).(string)
	return id, ok
}
