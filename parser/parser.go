package parser

import (
	"encoding/json"
	"errors"
	"strings"
)

// DuplicateVerdict represents the parsed duplicate-detection response
type DuplicateVerdict struct {
	IsDuplicate   bool   `json:"is_duplicate"`
	DuplicateOfID string `json:"duplicate_of_id"`
}

// PriorityVerdict represents the parsed priority-scoring response
type PriorityVerdict struct {
	Priority string `json:"priority"`
}

// ExtractJSONFromMarkdown extracts JSON from markdown code blocks
func ExtractJSONFromMarkdown(response string) string {
	// Look for JSON code blocks with ``` markers
	startMarker := "```"
	endMarker := "```"

	startIdx := strings.Index(response, startMarker)
	if startIdx == -1 {
		// No code block found, try to find JSON object directly
		startIdx = strings.Index(response, "{")
		if startIdx == -1 {
			return response
		}
		endIdx := strings.LastIndex(response, "}")
		if endIdx == -1 {
			return response
		}
		return strings.TrimSpace(response[startIdx : endIdx+1])
	}

	// Find the end of the first code block
	endIdx := strings.Index(response[startIdx+len(startMarker):], endMarker)
	if endIdx == -1 {
		return response
	}
	endIdx += startIdx + len(startMarker)

	// Extract content between the markers
	content := response[startIdx+len(startMarker) : endIdx]

	// Remove the language identifier if present (e.g., "json")
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 && (strings.TrimSpace(lines[0]) == "json" || strings.TrimSpace(lines[0]) == "") {
		content = strings.Join(lines[1:], "\n")
	}

	return strings.TrimSpace(content)
}

// ParseDuplicateVerdict parses the classifier response for duplicate detection
func ParseDuplicateVerdict(response string) (*DuplicateVerdict, error) {
	jsonContent := ExtractJSONFromMarkdown(strings.TrimSpace(response))

	var verdict DuplicateVerdict
	if err := json.Unmarshal([]byte(jsonContent), &verdict); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}

	if verdict.IsDuplicate && verdict.DuplicateOfID == "" {
		return nil, errors.New("duplicate_of_id is required when is_duplicate is true")
	}
	if !verdict.IsDuplicate {
		// Ignore a stray id on a negative verdict
		verdict.DuplicateOfID = ""
	}
	return &verdict, nil
}

// ParsePriorityVerdict parses the classifier response for priority scoring
func ParsePriorityVerdict(response string) (*PriorityVerdict, error) {
	jsonContent := ExtractJSONFromMarkdown(strings.TrimSpace(response))

	var verdict PriorityVerdict
	if err := json.Unmarshal([]byte(jsonContent), &verdict); err != nil {
		return nil, errors.New("failed to parse JSON response: " + err.Error())
	}

	switch verdict.Priority {
	case "low", "medium", "high":
		return &verdict, nil
	}
	return nil, errors.New("priority must be one of low, medium, high")
}
