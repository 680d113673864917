package audit

import (
	"errors"

	"defaulter/internal/update"
)

// Multi appends every record to each sink in order. All sinks are tried even
// when one fails; the errors are joined.
type Multi []update.AuditSink

// Append implements update.AuditSink.
func (m Multi) Append(rec update.Record) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Append(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
