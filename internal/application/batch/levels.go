package batch

import "github.com/aescanero/bago/pkg/domain"

// buildLevels partitions validated messages into dependency levels: level 0
// holds messages with no dependencies, level k holds messages all of whose
// dependencies are satisfied by levels < k. Messages keep their request
// order within a level.
//
// The layering preserves the ordering contract: no message starts before
// every declared dependency has reached a terminal state. Input must have
// passed Validate; a cycle here would loop forever.
func buildLevels(messages []domain.BatchMessage) [][]domain.BatchMessage {
	satisfied := make(map[string]bool, len(messages))
	placed := make(map[string]bool, len(messages))

	var levels [][]domain.BatchMessage
	for len(placed) < len(messages) {
		var level []domain.BatchMessage
		for _, msg := range messages {
			if placed[msg.ID] {
				continue
			}
			ready := true
			for _, dep := range msg.DependencyIDs {
				if !satisfied[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, msg)
			}
		}

		for _, msg := range level {
			placed[msg.ID] = true
			satisfied[msg.ID] = true
		}
		levels = append(levels, level)
	}

	return levels
}
