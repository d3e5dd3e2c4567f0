package observability

import (
	"errors"
	"fmt"
)

// AggregateErrors collapses a batch of failures into one logged, wrapped
// error. Nil entries are ignored; an all-nil batch returns nil without
// logging anything.
func AggregateErrors(operation string, batch []error, fields ...Field) error {
	var (
		kept     []error
		messages []string
	)
	for _, err := range batch {
		if err != nil {
			kept = append(kept, err)
			messages = append(messages, err.Error())
		}
	}
	if len(kept) == 0 {
		return nil
	}
	Log().Error("operation errors", append(fields,
		Field{Key: "operation", Value: operation},
		Field{Key: "error_count", Value: len(kept)},
		Field{Key: "errors", Value: messages},
	)...)
	return fmt.Errorf("%s failed: %w", operation, errors.Join(kept...))
}
