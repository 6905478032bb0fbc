package service

import (
	"errors"
	"fmt"

	"ragchat/internal/domain"
)

const (
	okGlyph   = "✅"
	failGlyph = "❌"
)

// Status renders the result of a user action as a single status line.
func Status(success string, err error) string {
	if err != nil {
		return failGlyph + " " + describe(err)
	}
	return okGlyph + " " + success
}

// AddStatus renders the outcome of UploadPDF or AddURL.
func AddStatus(res AddResult, err error) string {
	if err != nil {
		return Status("", err)
	}
	how := "index rebuilt"
	if res.Incremental {
		how = "added to index"
	}
	return Status(fmt.Sprintf("%s source added: %d records, %s", res.Descriptor.Kind, res.Records, how), nil)
}

// OutcomeStatus renders one per-source load result.
func OutcomeStatus(o domain.Outcome) string {
	if o.Err != nil {
		return Status("", o.Err)
	}
	msg := fmt.Sprintf("%s (%d records)", o.Descriptor, o.Records)
	if o.Cached {
		msg += " cached"
	}
	return Status(msg, nil)
}

func describe(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoDocuments):
		return "No documents could be loaded. Add a PDF, YouTube or web source first."
	case errors.Is(err, domain.ErrNotReady):
		return "Not ready yet. Add a source to build the index."
	case errors.Is(err, domain.ErrIndexUnavailable):
		return "Index unavailable: " + err.Error()
	case errors.Is(err, domain.ErrEmptyContent):
		return "No content found: " + err.Error()
	case errors.Is(err, domain.ErrUnsupportedSource):
		return "Unsupported source: " + err.Error()
	}
	return err.Error()
}
