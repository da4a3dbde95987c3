package upload

import (
	"fmt"

	"github.com/fanvue/fanvue-app-starter/internal/model"
)

// Phase is a step of the upload reported to progress listeners.
type Phase int

const (
	PhaseInitiating Phase = iota
	PhaseRequestingURL
	PhaseUploadingPart
	PhaseFinalising
	PhaseCompleted
	PhaseCancelled
	PhaseFailed
)

// Event is one progress notification.
type Event struct {
	Phase      Phase
	PartNumber int
	TotalParts int
	Status     model.ProcessingStatus
	Err        error
}

// String renders the event as a status line.
func (e Event) String() string {
	switch e.Phase {
	case PhaseInitiating:
		return "Initiating..."
	case PhaseRequestingURL:
		return fmt.Sprintf("Requesting URL for part %d/%d...", e.PartNumber, e.TotalParts)
	case PhaseUploadingPart:
		return fmt.Sprintf("Uploading part %d/%d...", e.PartNumber, e.TotalParts)
	case PhaseFinalising:
		return "Finalising..."
	case PhaseCompleted:
		return fmt.Sprintf("Completed (status: %d)", int(e.Status))
	case PhaseCancelled:
		return "Upload cancelled"
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "Upload failed"
	}
}

// ProgressFunc receives progress events. With concurrency above one it is
// called from several goroutines.
type ProgressFunc func(Event)
