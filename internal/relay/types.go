// Package relay defines the value types shared across the request pipeline.
package relay

// Mode selects how strictly replies are kept short. Live mode is the
// default for spoken round-trips; record mode relaxes the length rules
// for dictated questions.
type Mode string

const (
	ModeLive   Mode = "live"
	ModeRecord Mode = "record"
)

// ParseMode maps the caller-supplied mode string to a Mode. Anything
// other than "record" is treated as live, matching the permissive
// handling of the wire field.
func ParseMode(s string) Mode {
	if s == string(ModeRecord) {
		return ModeRecord
	}
	return ModeLive
}

// AskRequest is the POST /ask request body.
type AskRequest struct {
	Text     string `json:"text"`
	UserName string `json:"userName,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

// AskResponse is the body for every /ask outcome, success or failure.
// The reply is always a plain sentence suitable for speaking aloud.
type AskResponse struct {
	Reply string `json:"reply"`
}
