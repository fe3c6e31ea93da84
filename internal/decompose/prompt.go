package decompose

import "fmt"

// decompositionPrompt instructs the model to emit an ordered JSON array of
// subtasks. Types must match the routing tags in pkg/models.
const decompositionPrompt = `Break the following request into an ordered list of subtasks.

Rules:
- Each subtask must be independently executable by a single worker.
- Order subtasks so that earlier results feed later steps.
- Use as few subtasks as possible; do not pad with setup or review steps.
- Tag each subtask with exactly one type: research, code, write, analyze, general.

Respond with ONLY a JSON array, no other text:
[
  {"type": "research", "task": "..."},
  {"type": "code", "task": "..."}
]

Request:
%s`

// buildPrompt embeds the (already budget-truncated) request text.
func buildPrompt(request string) string {
	return fmt.Sprintf(decompositionPrompt, request)
}
