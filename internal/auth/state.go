package auth

// OAUTH STATE ENVELOPE:
// The browser builds the OAuth "state" parameter itself before redirecting to
// GitHub:
//
//	state = base64(JSON({"redirectTo": "/projects", "csrfToken": "<uuid>"}))
//
// and remembers csrfToken in sessionStorage. GitHub echoes state back to our
// callback untouched. The server only checks that the envelope is well formed
// and echoes csrfToken to the frontend in the final redirect; the frontend
// compares it with the value it stored (CheckCallbackCSRF) and logs out on a
// mismatch. Nothing about the state is persisted server-side.

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrBadState is returned for any malformed state envelope.
	ErrBadState = errors.New("auth: malformed OAuth state")

	// ErrCSRFMismatch means the echoed csrf token is not the one the browser issued.
	ErrCSRFMismatch = errors.New("auth: OAuth csrf token mismatch")
)

// State is the decoded OAuth state parameter.
type State struct {
	RedirectTo string `json:"redirectTo"`
	CSRFToken  string `json:"csrfToken"`
}

// NewState creates a state with a fresh random csrf token.
func NewState(redirectTo string) State {
	return State{RedirectTo: redirectTo, CSRFToken: uuid.NewString()}
}

// Encode renders the state the way the frontend puts it in the authorize URL.
func (s State) Encode() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("auth: encoding state: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeState parses and validates a state parameter. The value must already
// be URL-unescaped (r.URL.Query() does that). Both padded and unpadded
// base64, standard or URL alphabet, are accepted.
func DecodeState(raw string) (*State, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadState)
	}

	trimmed := strings.TrimRight(raw, "=")
	decoded, err := base64.RawStdEncoding.DecodeString(trimmed)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: not base64", ErrBadState)
		}
	}

	var s State
	if err := json.Unmarshal(decoded, &s); err != nil {
		return nil, fmt.Errorf("%w: not JSON", ErrBadState)
	}
	if !strings.HasPrefix(s.RedirectTo, "/") {
		return nil, fmt.Errorf("%w: redirectTo must be a path", ErrBadState)
	}
	if _, err := uuid.Parse(s.CSRFToken); err != nil {
		return nil, fmt.Errorf("%w: csrfToken is not a UUID", ErrBadState)
	}

	return &s, nil
}

// CheckCallbackCSRF is the client-side half of the CSRF defence: it compares
// the token the browser stored before leaving for GitHub with the one echoed
// back in the callback redirect.
func CheckCallbackCSRF(stored, echoed string) error {
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(echoed)) != 1 {
		return ErrCSRFMismatch
	}
	return nil
}
