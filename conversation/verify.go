package conversation

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcphost/encoding"
	"github.com/effective-security/mcphost/pkg/prompts"
)

// VerificationResult is the verdict returned by the evaluator model.
type VerificationResult struct {
	Passes   bool   `json:"passes"`
	Feedback string `json:"feedback,omitempty"`
}

var criteriaPrompt = prompts.PromptTemplate{
	Template: "Based on the following user request, list concise, verifiable criteria for a successful response. " +
		"Focus on key actions, information requested, and constraints mentioned. " +
		"Output ONLY the criteria list, one criterion per line, starting with '- '. Do not include any other text.\n" +
		"\n" +
		"User Request:\n```\n{request}\n```\n" +
		"\n" +
		"Criteria:",
	InputVariables: []string{"request"},
	TemplateFormat: prompts.TemplateFormatFString,
}

var verificationPrompt = prompts.PromptTemplate{
	Template: "You are a strict evaluator. Verify if the 'Assistant's Actions and Final Response' sequence below meets ALL the 'Success Criteria' based on the 'Original User Request'.\n" +
		"\n" +
		"Original User Request:\n```\n{request}\n```\n" +
		"\n" +
		"Success Criteria:\n```\n{criteria}\n```\n" +
		"\n" +
		"Assistant's Actions and Final Response:\n```\n{sequence}\n```\n" +
		"\n" +
		"Instructions:\n" +
		"1. Carefully review the *entire sequence* of the assistant's actions (including tool calls/results shown) and its final response.\n" +
		"2. Compare this sequence against each point in the 'Success Criteria'.\n" +
		"3. Determine if the *outcome* of the assistant's actions and the final response *fully and accurately* satisfy *all* criteria.\n" +
		"4. Output ONLY a valid JSON object with the following structure:\n" +
		"`{{\"passes\": boolean, \"feedback\": \"string (provide concise feedback ONLY if passes is false, explaining which criteria failed and why, referencing the assistant's actions if relevant)\"}}`\n" +
		"5. Do NOT include any other text, explanations, or markdown formatting.",
	InputVariables: []string{"request", "criteria", "sequence"},
	TemplateFormat: prompts.TemplateFormatFString,
}

const revisionDirective = "Verification failed. Please analyze the feedback above and revise your previous response " +
	"to meet the original request's criteria. Provide a new, complete response."

// GenerateCriteria produces success criteria for a user request,
// one criterion per line. The criteria are later used to verify the
// final response of the turn.
func (e *Engine) GenerateCriteria(ctx context.Context, userRequest string) (string, error) {
	return e.generateCriteria(ctx, e.cfg, userRequest)
}

func (e *Engine) generateCriteria(ctx context.Context, cfg *Config, userRequest string) (string, error) {
	prompt, err := criteriaPrompt.Format(map[string]any{"request": userRequest})
	if err != nil {
		return "", errors.WithMessage(err, "failed to render criteria prompt")
	}
	resp, err := e.execute(ctx, cfg, e.gen.Builder().User(prompt))
	if err != nil {
		return "", errors.WithMessage(err, "failed to generate criteria")
	}
	return strings.TrimSpace(resp), nil
}

// verify asks the evaluator whether the assistant actions since the last
// user message satisfy the criteria. The evaluator sees the original
// request, the criteria, and the assistant message sequence.
func (e *Engine) verify(ctx context.Context, cfg *Config, state *State, criteria, proposed string) (*VerificationResult, error) {
	original := "Original request not found in history."
	lastUser := -1
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == RoleUser {
			original = state.Messages[i].Content
			lastUser = i
			break
		}
	}

	var sequence string
	if lastUser >= 0 {
		var parts []string
		for _, msg := range state.Messages[lastUser+1:] {
			if msg.Role == RoleAssistant {
				parts = append(parts, msg.Content)
			}
		}
		sequence = strings.Join(parts, "\n\n---\n\n")
	}
	switch {
	case sequence == "":
		sequence = proposed
	case state.Messages[len(state.Messages)-1].Content != proposed:
		// The loop may exit before the final response reaches the transcript.
		sequence += "\n\n---\n\n" + proposed
	}

	prompt, err := verificationPrompt.Format(map[string]any{
		"request":  original,
		"criteria": criteria,
		"sequence": sequence,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to render verification prompt")
	}
	resp, err := e.execute(ctx, cfg, e.gen.Builder().User(prompt))
	if err != nil {
		return nil, errors.WithMessage(err, "verification call failed")
	}

	parser, err := encoding.NewTypedOutputParser(VerificationResult{}, encoding.ModeJSON)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(resp)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to parse verification response")
	}
	return res, nil
}
