package metrics

import "github.com/go-creditgate/creditgate/internal/core"

// Recorder is an alias for core.Recorder so callers inside this package
// don't need to import core directly.
type Recorder = core.Recorder
