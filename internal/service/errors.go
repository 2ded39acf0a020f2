package service

import "errors"

// Sentinel errors surfaced to the HTTP layer, which maps them onto the
// wire error envelope.
var (
	// ErrInvalidRequest marks client mistakes detected before any work.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStreamingUnsupported rejects stream=true requests.
	ErrStreamingUnsupported = errors.New("streaming is not supported yet")

	// ErrUnknownPack rejects purchases of packs not in the catalogue.
	ErrUnknownPack = errors.New("unknown credit pack")

	// ErrDuplicatePurchase rejects replayed store purchase tokens.
	ErrDuplicatePurchase = errors.New("purchase has already been processed")

	// ErrInvalidToken rejects identity tokens that fail validation.
	ErrInvalidToken = errors.New("invalid ID token")

	// ErrInvalidDeviceCode marks unknown device flow handles.
	ErrInvalidDeviceCode = errors.New("invalid device code")

	// ErrDeviceCodeExpired marks device flows past their expiry.
	ErrDeviceCodeExpired = errors.New("device code expired")

	// ErrAuthorizationPending is the normal polling response before the
	// user approves the device.
	ErrAuthorizationPending = errors.New("authorization pending")

	// ErrSlowDown asks the client to back off its polling interval.
	ErrSlowDown = errors.New("slow down")

	// ErrAccessDenied marks a device flow the user rejected.
	ErrAccessDenied = errors.New("access denied")
)
