package batch

import (
	"fmt"

	"github.com/aescanero/bago/pkg/domain"
)

// Validator validates batch message dependency declarations
type Validator struct{}

// NewValidator creates a new batch validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a batch's messages for structural problems: empty or
// duplicate ids, dependency references to messages outside the batch, and
// dependency cycles. It is pure and safe to call from concurrent batches.
func (v *Validator) Validate(messages []domain.BatchMessage) error {
	if len(messages) == 0 {
		return fmt.Errorf("batch must have at least one message")
	}

	// First pass: collect declared ids
	ids := make(map[string]bool, len(messages))
	for _, msg := range messages {
		if msg.ID == "" {
			return fmt.Errorf("message ID is required")
		}
		if ids[msg.ID] {
			return fmt.Errorf("duplicate message ID: %s", msg.ID)
		}
		ids[msg.ID] = true
	}

	// Second pass: every dependency must reference a declared id
	deps := make(map[string][]string, len(messages))
	for _, msg := range messages {
		for _, dep := range msg.DependencyIDs {
			if !ids[dep] {
				return &domain.ValidationError{MessageID: msg.ID, MissingID: dep}
			}
		}
		deps[msg.ID] = msg.DependencyIDs
	}

	// Third pass: depth-first cycle detection with an on-stack set and
	// memoized fully-visited marking, O(n + e) overall.
	const (
		unvisited = iota
		onStack
		visited
	)
	state := make(map[string]int, len(messages))

	var visit func(id string) *domain.ValidationError
	visit = func(id string) *domain.ValidationError {
		switch state[id] {
		case onStack:
			return &domain.ValidationError{MessageID: id, Circular: true}
		case visited:
			return nil
		}

		state[id] = onStack
		for _, dep := range deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = visited
		return nil
	}

	for _, msg := range messages {
		if err := visit(msg.ID); err != nil {
			return err
		}
	}

	return nil
}
