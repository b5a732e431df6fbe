package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"quizmesh/internal/config"
	"quizmesh/internal/domain"
)

// ResumeToken is what a participant needs to come back to a session after a
// restart
type ResumeToken struct {
	Code     domain.SessionCode `json:"code"`
	Role     Role               `json:"role"`
	Name     string             `json:"name"`
	PlayerID string             `json:"playerId,omitempty"`
}

// Token returns an opaque string that Resume accepts
func (s *Session) Token() string {
	data, _ := json.Marshal(&ResumeToken{
		Code:     s.code,
		Role:     s.role,
		Name:     s.name,
		PlayerID: s.playerID,
	})
	return base64.RawURLEncoding.EncodeToString(data)
}

// ParseToken decodes a token produced by Session.Token
func ParseToken(token string) (*ResumeToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	var t ResumeToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if t.Code == "" || t.Name == "" {
		return nil, fmt.Errorf("%w: missing code or name", domain.ErrInvalidToken)
	}
	if t.Role != RoleHost && t.Role != RolePlayer {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidToken, t.Role)
	}
	return &t, nil
}

// Resume rejoins the session a token describes. A host reopens the room
// under the same code with an empty roster; a player keeps its player id so
// the host reconnects its existing record and score.
func Resume(ctx context.Context, cfg *config.Config, deps Deps, token string) (*Session, error) {
	t, err := ParseToken(token)
	if err != nil {
		return nil, err
	}
	deps = deps.withDefaults()

	playerID := t.PlayerID
	if playerID == "" {
		playerID = uuid.NewString()
	}

	switch t.Role {
	case RoleHost:
		return host(ctx, cfg, deps, t.Code, t.Name, playerID)
	default:
		return join(ctx, cfg, deps, domain.NormalizeSessionCode(t.Code.String()), t.Name, playerID)
	}
}
