package decompose

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// parsedSubtask is the JSON structure the model returns for one subtask.
type parsedSubtask struct {
	Type string `json:"type"`
	Task string `json:"task"`
}

// ParseResponse extracts the JSON array of subtasks from a model response.
// Responses are often wrapped in prose or lightly malformed, so parsing
// first slices out the array, then retries through jsonrepair before
// giving up. Entries with an empty task are dropped.
func ParseResponse(response string) ([]parsedSubtask, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("no JSON array found in response (%d chars)", len(response))
	}
	jsonStr := response[jsonStart : jsonEnd+1]

	var parsed []parsedSubtask
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(jsonStr)
		if repairErr != nil {
			return nil, fmt.Errorf("unmarshal JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
			return nil, fmt.Errorf("unmarshal repaired JSON: %w", err)
		}
	}

	usable := parsed[:0]
	for _, p := range parsed {
		if strings.TrimSpace(p.Task) == "" {
			continue
		}
		usable = append(usable, p)
	}

	if len(usable) == 0 {
		return nil, fmt.Errorf("empty subtask list returned")
	}
	return usable, nil
}
