// Package storage persists the review form between visits.
//
// Information Hiding:
// - Backend details (SQLite file, in-memory map) hidden behind FormStore
// - Forms are copied on the way in and out; callers never share maps with the store

package storage

import (
	"context"
	"time"

	"github.com/richinex/aecheck/workflow"
)

// Form is everything a user has typed or selected: the workflow
// configuration plus the chosen sample narrative.
type Form struct {
	workflow.Config
	// Sample is the index of the selected sample narrative, -1 for none.
	Sample    int       `json:"sample"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FormStore saves one form per browser session.
type FormStore interface {
	// SaveForm replaces the form stored for a session.
	SaveForm(ctx context.Context, sessionID string, form Form) error

	// LoadForm returns the stored form. found is false when the session has
	// never saved one; the error is reserved for storage failures.
	LoadForm(ctx context.Context, sessionID string) (form Form, found bool, err error)

	// DeleteForm forgets a session's form.
	DeleteForm(ctx context.Context, sessionID string) error

	// ListSessions lists session ids, most recently updated first.
	ListSessions(ctx context.Context) ([]string, error)

	Close() error
}

// Open returns the store for a driver name ("memory" or "sqlite").
func Open(driver, path string) (FormStore, error) {
	switch driver {
	case "", "memory":
		return NewInMemoryStorage(), nil
	case "sqlite":
		return OpenSqlite(path)
	default:
		return nil, &UnknownDriverError{Driver: driver}
	}
}

// UnknownDriverError reports an unsupported storage driver.
type UnknownDriverError struct {
	Driver string
}

func (e *UnknownDriverError) Error() string {
	return "unknown storage driver: " + e.Driver
}

func cloneForm(f Form) Form {
	out := f
	if f.Prompts != nil {
		out.Prompts = make(map[string]string, len(f.Prompts))
		for k, v := range f.Prompts {
			out.Prompts[k] = v
		}
	}
	if f.Models != nil {
		out.Models = make(map[string]int, len(f.Models))
		for k, v := range f.Models {
			out.Models[k] = v
		}
	}
	return out
}
