// Package session keeps reviewed imports between the upload request and the
// commit request.
package session

import (
	"context"
	"errors"
	"time"

	"lambari-service/internal/models"
)

var (
	ErrNotFound = errors.New("import session not found")
	ErrBusy     = errors.New("import session is being committed")
	ErrLockLost = errors.New("import session lock expired or taken over")
)

// Session is one uploaded spreadsheet awaiting or past confirmation.
type Session struct {
	ID           string                    `json:"id"`
	Filename     string                    `json:"filename"`
	State        models.ImportState        `json:"state"`
	TotalRows    int                       `json:"totalRows"`
	ValidCount   int                       `json:"validCount"`
	WarningCount int                       `json:"warningCount"`
	ErrorCount   int                       `json:"errorCount"`
	Validations  []models.ValidationResult `json:"validations"`
	Report       *models.BulkImportReport  `json:"report,omitempty"`
	Error        string                    `json:"error,omitempty"`
	CreatedBy    string                    `json:"createdBy,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
	UpdatedAt    time.Time                 `json:"updatedAt"`
}

// Summarize fills the status counters from Validations.
func (s *Session) Summarize() {
	s.TotalRows = len(s.Validations)
	s.ValidCount, s.WarningCount, s.ErrorCount = 0, 0, 0
	for _, v := range s.Validations {
		switch v.Status {
		case models.RowStatusValid:
			s.ValidCount++
		case models.RowStatusWarning:
			s.WarningCount++
		case models.RowStatusError:
			s.ErrorCount++
		}
	}
}

// Store persists sessions. Lock gives one caller exclusive commit rights
// over a session; a second caller gets ErrBusy until the lease is released
// or expires.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string, ttl time.Duration) (Lease, error)
}

// Lease is a held session lock. Refresh pushes the expiry ttl into the
// future and fails with ErrLockLost once another holder owns the lock.
// Release is idempotent.
type Lease interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release()
}
