// Package codec converts the shared document to and from the base64 transport text used by the
// GitHub contents API.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/MarcoPoloResearchLab/frostlog/internal/records"
)

// Decode stages.
const (
	StageTransport = "transport"
	StageUTF8      = "utf8"
	StageJSON      = "json"
)

var errInvalidUTF8 = errors.New("content is not valid utf-8")

// DecodeError reports a remote payload that could not be turned into a document.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err carries a *DecodeError.
func IsDecodeError(err error) bool {
	var decodeErr *DecodeError
	return errors.As(err, &decodeErr)
}

// Encode renders the document as JSON and base64-encodes its UTF-8 bytes.
func Encode(document records.Document) (string, error) {
	payload, err := json.MarshalIndent(document.Normalize(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("codec: encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// Decode reverses Encode. GitHub wraps base64 content at 60 columns, so whitespace is dropped first.
func Decode(content string) (records.Document, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, content)

	payload, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return records.Document{}, &DecodeError{Stage: StageTransport, Err: err}
	}
	if !utf8.Valid(payload) {
		return records.Document{}, &DecodeError{Stage: StageUTF8, Err: errInvalidUTF8}
	}

	var document records.Document
	if err := json.Unmarshal(payload, &document); err != nil {
		return records.Document{}, &DecodeError{Stage: StageJSON, Err: err}
	}
	return document.Normalize(), nil
}
