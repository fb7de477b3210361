package existence

import (
	"fmt"
	"time"

	"github.com/JakeFAU/resource-existence/internal/catalog"
)

// Suspect is a resource that the sweep marked as probably deleted.
type Suspect struct {
	ID     catalog.ResourceID      `json:"id"`
	Status catalog.ExistenceStatus `json:"status"`
}

// Summary describes a finished (or interrupted) sweep. InterruptedAt is the
// first position a canceled sweep left unchecked.
type Summary struct {
	RunID         string                          `json:"run_id"`
	StartedAt     time.Time                       `json:"started_at"`
	FinishedAt    time.Time                       `json:"finished_at"`
	Offset        int                             `json:"offset"`
	Total         int                             `json:"total"`
	Skipped       int                             `json:"skipped"`
	Processed     int                             `json:"processed"`
	Complete      int                             `json:"complete"`
	SoftBlocked   int                             `json:"soft_blocked"`
	Suspects      int                             `json:"suspects"`
	ByStatus      map[catalog.ExistenceStatus]int `json:"by_status"`
	SuspectIDs    []Suspect                       `json:"suspect_ids"`
	WriteErrors   int                             `json:"write_errors"`
	Recycles      int                             `json:"recycles"`
	InterruptedAt int                             `json:"interrupted_at,omitempty"`
}

func newSummary(runID string, started time.Time, offset int) Summary {
	return Summary{
		RunID:     runID,
		StartedAt: started,
		Offset:    offset,
		ByStatus:  make(map[catalog.ExistenceStatus]int),
	}
}

func (s *Summary) addSuspect(id catalog.ResourceID, status catalog.ExistenceStatus) {
	s.Suspects++
	s.ByStatus[status]++
	s.SuspectIDs = append(s.SuspectIDs, Suspect{ID: id, Status: status})
}

// Message is the human readable sweep result. The denominator is every
// enumerated resource, including skipped ones.
func (s Summary) Message() string {
	return fmt.Sprintf("%d/%d resources are probably deleted.", s.Suspects, s.Total)
}
