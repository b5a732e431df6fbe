package domain

import "errors"

// Transport errors
var (
	ErrSignalingUnavailable = errors.New("signaling relay unavailable")
	ErrNegotiationTimeout   = errors.New("negotiation timed out")
	ErrLinkNotReady         = errors.New("link not ready")
	ErrLinkClosed           = errors.New("link closed")
	ErrMalformedDescriptor  = errors.New("malformed session descriptor")
	ErrInvalidTransition    = errors.New("invalid link state transition")
)

// Protocol errors
var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownKind      = errors.New("unknown message kind")
)

// Game errors
var (
	// ErrDuplicateBuzz is not a failure: callers drop the buzz silently.
	ErrDuplicateBuzz      = errors.New("player already buzzed for this question")
	ErrNoActiveQuestion   = errors.New("no active question")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrNotHost            = errors.New("only host can perform this action")
	ErrNotPlayer          = errors.New("only players can perform this action")
	ErrHostExists         = errors.New("session already has a host")
	ErrInvalidSessionCode = errors.New("invalid session code")
	ErrInvalidToken       = errors.New("invalid session token")
	ErrSessionClosed      = errors.New("session closed")
	ErrEmptyName          = errors.New("name cannot be empty")
	ErrEmptyQuestion      = errors.New("question and answer are required")
)
