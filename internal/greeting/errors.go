package greeting

import (
	"fmt"

	"kiosk/internal/services"
)

var (
	// ErrSynthesis reports that a greeting asset could not be produced.
	ErrSynthesis = fmt.Errorf("greeting synthesis failed: %w", services.ErrExternalTool)
	// ErrPlayback reports that a greeting asset could not be played.
	ErrPlayback = fmt.Errorf("greeting playback failed: %w", services.ErrExternalTool)
)
