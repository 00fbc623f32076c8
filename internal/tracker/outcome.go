package tracker

import (
	"encoding/json"
	"fmt"

	"github.com/hpungsan/sitediff/internal/diff"
	"github.com/hpungsan/sitediff/internal/errors"
)

// Kind names an outcome variant.
type Kind string

const (
	KindCreated   Kind = "created"
	KindUnchanged Kind = "unchanged"
	KindChanged   Kind = "changed"
)

// Outcome is one of Created, Unchanged or Changed.
type Outcome interface {
	Kind() Kind
	isOutcome()
}

// Created is the first observation of a URL: its snapshot was written and
// the URL registered.
type Created struct{}

// Unchanged means the fetched content matched the stored snapshot.
type Unchanged struct {
	Script diff.Script
}

// Changed means the content differed; the snapshot was replaced.
type Changed struct {
	Script     diff.Script
	PlainText  string
	MarkupText string
}

func (Created) Kind() Kind   { return KindCreated }
func (Unchanged) Kind() Kind { return KindUnchanged }
func (Changed) Kind() Kind   { return KindChanged }

func (Created) isOutcome()   {}
func (Unchanged) isOutcome() {}
func (Changed) isOutcome()   {}

// Result is the outcome of tracking one URL. Exactly one of Outcome and Err is set.
type Result struct {
	URL     string
	Key     string
	Outcome Outcome
	Err     error
}

// IsChanged reports whether the result carries a Changed outcome.
func (r Result) IsChanged() bool {
	_, ok := r.Outcome.(Changed)
	return ok
}

// IsCreated reports whether the result carries a Created outcome.
func (r Result) IsCreated() bool {
	_, ok := r.Outcome.(Created)
	return ok
}

// Script returns the edit script, if a comparison took place.
func (r Result) Script() diff.Script {
	switch o := r.Outcome.(type) {
	case Unchanged:
		return o.Script
	case Changed:
		return o.Script
	}
	return nil
}

// Message is the plain-text summary suitable for a notification body.
func (r Result) Message() string {
	switch o := r.Outcome.(type) {
	case Created:
		return fmt.Sprintf("Writing initial %s file.", r.Key)
	case Unchanged:
		return "No differences detected."
	case Changed:
		return o.PlainText
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

// MessageHTML is the markup summary; only Changed results carry one.
func (r Result) MessageHTML() string {
	if o, ok := r.Outcome.(Changed); ok {
		return o.MarkupText
	}
	return ""
}

// resultJSON is the wire shape of a Result.
type resultJSON struct {
	URL         string      `json:"url"`
	Key         string      `json:"key"`
	Kind        Kind        `json:"kind,omitempty"`
	Created     bool        `json:"created"`
	Changed     bool        `json:"changed"`
	Message     string      `json:"message,omitempty"`
	MessageHTML string      `json:"message_html,omitempty"`
	Script      diff.Script `json:"script,omitempty"`
	Error       *errorJSON  `json:"error,omitempty"`
}

type errorJSON struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MarshalJSON flattens the outcome for CLI and MCP output.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		URL:         r.URL,
		Key:         r.Key,
		Created:     r.IsCreated(),
		Changed:     r.IsChanged(),
		Message:     r.Message(),
		MessageHTML: r.MessageHTML(),
		Script:      r.Script(),
	}
	if r.Outcome != nil {
		out.Kind = r.Outcome.Kind()
	}
	if r.Err != nil {
		code := string(errors.ErrInternal)
		msg := r.Err.Error()
		if sErr, ok := errors.As(r.Err); ok {
			code = string(sErr.Code)
			msg = sErr.Message
		}
		out.Error = &errorJSON{Code: code, Message: msg}
	}
	return json.Marshal(out)
}
