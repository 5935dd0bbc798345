package monitor

import "errors"

// ErrSourceNotFound is recorded when the source file is absent at cycle
// start. Handled at the cycle boundary, never propagated.
var ErrSourceNotFound = errors.New("monitor: source file not found")
