package agent

import (
	"fmt"

	"github.com/loomery/loom/pkg/models"
)

// typeInstructions prefixes the subtask payload with a short role framing
// per task type. Untagged types fall through to the general framing.
var typeInstructions = map[models.SubtaskType]string{
	models.SubtaskTypeResearch: "You are a research assistant. Gather and summarize the relevant facts.",
	models.SubtaskTypeCode:     "You are a software engineer. Produce working code with no surrounding prose.",
	models.SubtaskTypeWrite:    "You are a technical writer. Produce clear, well-structured prose.",
	models.SubtaskTypeAnalyze:  "You are an analyst. Reason step by step and state your conclusion.",
	models.SubtaskTypeGeneral:  "Complete the following task.",
}

// buildWorkerPrompt frames the subtask payload for execution.
func buildWorkerPrompt(subtask *models.Subtask) string {
	instruction, ok := typeInstructions[subtask.Type]
	if !ok {
		instruction = typeInstructions[models.SubtaskTypeGeneral]
	}
	return fmt.Sprintf("%s\n\nTask:\n%s", instruction, subtask.Payload)
}
