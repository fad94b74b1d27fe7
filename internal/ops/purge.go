package ops

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/flowgen/internal/db"
	"github.com/hpungsan/flowgen/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThan time.Duration // remove uploads older than this; 0 removes none by age
	Keep      int           // keep at most this many newest uploads; 0 means no cap
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge permanently deletes stored uploads by age and/or count.
func Purge(database *sql.DB, input PurgeInput) (*PurgeOutput, error) {
	if input.OlderThan < 0 || input.Keep < 0 {
		return nil, errors.NewInvalidRequest("older_than and keep must not be negative")
	}
	if input.OlderThan == 0 && input.Keep == 0 {
		return nil, errors.NewInvalidRequest("specify older_than or keep")
	}

	count := 0
	if input.OlderThan > 0 {
		cutoff := time.Now().Add(-input.OlderThan).Unix()
		n, err := db.DeleteOlderThan(database, cutoff)
		if err != nil {
			return nil, err
		}
		count += n
	}
	if input.Keep > 0 {
		n, err := db.TrimToNewest(database, input.Keep)
		if err != nil {
			return nil, err
		}
		count += n
	}

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int, input PurgeInput) string {
	if count == 0 {
		return "No uploads to purge"
	}

	word := "upload"
	if count > 1 {
		word = "uploads"
	}
	msg := fmt.Sprintf("Permanently deleted %d %s", count, word)

	if input.OlderThan > 0 {
		msg += fmt.Sprintf(" (older than %s)", input.OlderThan)
	}
	if input.Keep > 0 {
		msg += fmt.Sprintf(" (keeping newest %d)", input.Keep)
	}
	return msg
}
