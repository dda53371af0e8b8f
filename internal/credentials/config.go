// Package credentials holds the GitHub access settings used for remote sync.
//
// Settings are stored in a single file encrypted with XChaCha20-Poly1305. The key is derived
// from an operator-supplied passphrase with Argon2id and a random per-file salt.
package credentials

import "strings"

// Placeholder values shipped with the dashboard template. They count as missing.
const (
	PlaceholderOwner = "seu-usuario-ou-organizacao"
	PlaceholderRepo  = "seu-repositorio-do-dashboard"
)

// State summarizes how usable a RemoteConfig is.
type State string

const (
	StateMissing    State = "missing"
	StateIncomplete State = "incomplete"
	StateComplete   State = "complete"
)

// RemoteConfig identifies the repository holding the shared document.
type RemoteConfig struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

func (c RemoteConfig) normalized() RemoteConfig {
	return RemoteConfig{
		Token: strings.TrimSpace(c.Token),
		Owner: strings.TrimSpace(c.Owner),
		Repo:  strings.TrimSpace(c.Repo),
	}
}

// State reports Missing when nothing usable is set, Incomplete when only part is.
func (c RemoteConfig) State() State {
	normalized := c.normalized()
	owner := normalized.Owner
	if owner == PlaceholderOwner {
		owner = ""
	}
	repo := normalized.Repo
	if repo == PlaceholderRepo {
		repo = ""
	}
	switch {
	case normalized.Token == "" && owner == "" && repo == "":
		return StateMissing
	case normalized.Token == "" || owner == "" || repo == "":
		return StateIncomplete
	default:
		return StateComplete
	}
}

// Complete reports whether token, owner and repo are all set to real values.
func (c RemoteConfig) Complete() bool {
	return c.State() == StateComplete
}

// MaskToken shows only the last four characters of the token.
func (c RemoteConfig) MaskToken() string {
	token := strings.TrimSpace(c.Token)
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
