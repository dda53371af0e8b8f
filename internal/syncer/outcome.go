package syncer

import (
	"github.com/MarcoPoloResearchLab/frostlog/internal/status"
)

// Kind names the result of one poll or publish.
type Kind string

const (
	KindConfigMissing    Kind = "config_missing"
	KindConfigIncomplete Kind = "config_incomplete"
	KindUnauthorized     Kind = "unauthorized"
	KindNotFound         Kind = "not_found"
	KindStaleTarget      Kind = "stale_target"
	KindConflict         Kind = "conflict"
	KindTransient        Kind = "transient"
	KindReadFailed       Kind = "read_failed"
	KindDecodeError      Kind = "decode_error"
	KindUnchanged        Kind = "unchanged"
	KindUpdated          Kind = "updated"
	KindPublished        Kind = "published"
)

type presentation struct {
	category status.Category
	message  string
}

var presentations = map[Kind]presentation{
	KindConfigMissing:    {status.CategoryConfigMissing, "Remote sync is not configured. Add the GitHub token, owner and repository."},
	KindConfigIncomplete: {status.CategoryConfigIncomplete, "Remote sync configuration is incomplete. Check the token, owner and repository."},
	KindUnauthorized:     {status.CategoryUnauthorized, "GitHub rejected the token. Provide a valid token with repository contents access."},
	KindNotFound:         {status.CategoryNotFound, "No shared data file yet. It will be created on the next save."},
	KindStaleTarget:      {status.CategoryNotFound, "The shared data file moved or was removed. Refresh and try again."},
	KindConflict:         {status.CategoryConflict, "Someone else saved changes first. Your changes are kept locally; refresh and try again."},
	KindTransient:        {status.CategoryTransient, "Could not reach GitHub. Changes are kept locally and sync will retry."},
	KindReadFailed:       {status.CategoryTransient, "Could not reach GitHub. Changes are kept locally and sync will retry."},
	KindDecodeError:      {status.CategoryDecode, "The shared data file is damaged. Keeping the last good data."},
	KindUnchanged:        {status.CategoryNone, "Data is up to date."},
	KindUpdated:          {status.CategoryNone, "Data updated from GitHub."},
	KindPublished:        {status.CategoryNone, "Changes saved to GitHub."},
}

// Outcome is the classified result of a poll or publish. Remote failures are reported here,
// never as Go errors.
type Outcome struct {
	Kind     Kind            `json:"kind"`
	Category status.Category `json:"category,omitempty"`
	Message  string          `json:"message"`
	SHA      string          `json:"sha,omitempty"`
	Err      error           `json:"-"`
}

func newOutcome(kind Kind, err error) Outcome {
	shown := presentations[kind]
	return Outcome{Kind: kind, Category: shown.category, Message: shown.message, Err: err}
}

// Succeeded reports outcomes that leave local and remote state consistent.
// A poll that finds no remote document yet counts as success.
func (o Outcome) Succeeded() bool {
	switch o.Kind {
	case KindUnchanged, KindUpdated, KindPublished, KindNotFound:
		return true
	default:
		return false
	}
}

func (o Outcome) report(surface *status.Surface) {
	if surface == nil {
		return
	}
	if o.Succeeded() {
		surface.Succeed(o.Message)
		return
	}
	surface.Fail(o.Category, o.Message)
}
