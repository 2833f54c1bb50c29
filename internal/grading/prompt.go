package grading

import (
	"fmt"
	"strings"

	"github.com/mlenz-dev/aibroker/internal/provider"
)

const systemPromptTemplate = `You are an experienced teacher grading a student submission.

Evaluate the submission below and respond with a single JSON object of the form
{"score": <number between 0 and %.0f>, "comment": "<short feedback for the student>"}.

The score must be a number, not a string. The comment should briefly explain
the score and point out what could be improved. Do not include anything
outside the JSON object.`

// buildRequest assembles the deferred grading request for a submission. A
// custom prompt replaces the default instructions but the JSON contract is
// always appended so the extractor has something to find.
func buildRequest(sub Submission) provider.Request {
	system := fmt.Sprintf(systemPromptTemplate, sub.MaxScore)
	if sub.CustomPrompt != "" {
		system = sub.CustomPrompt + "\n\n" + fmt.Sprintf(
			`Respond with a single JSON object {"score": <number between 0 and %.0f>, "comment": "<feedback>"}.`,
			sub.MaxScore)
	}

	var user strings.Builder
	if len(sub.FileNames) > 0 {
		fmt.Fprintf(&user, "Submitted files: %s\n\n", strings.Join(sub.FileNames, ", "))
	}
	user.WriteString(sub.Content)

	return provider.Request{
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: system},
			{Role: provider.RoleUser, Content: user.String()},
		},
		UseReasoningModel: true,
		ResponseFormat:    &provider.ResponseFormat{Type: "json_object"},
	}
}
