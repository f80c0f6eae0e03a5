package reconcile

import "errors"

// ErrBlankName is returned by the stage resolver for a blank raw state name.
// Callers treat it as a resolution miss: the containing event is skipped,
// nothing is created, processing continues. Partial data must not stall a
// reconciliation pass.
var ErrBlankName = errors.New("blank name")
