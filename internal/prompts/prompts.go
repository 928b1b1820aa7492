// Package prompts builds every prompt textgrad sends to an engine.
//
// All builders are pure functions of their arguments: no timestamps, no map
// iteration, no randomness. Identical graphs therefore produce byte-identical
// prompts, which keeps a cache keyed on the literal prompt text effective.
package prompts

import (
	"fmt"
	"strings"
)

// BackwardSystemPrompt is the system prompt for every gradient call.
const BackwardSystemPrompt = "You are part of an optimization system that improves text variables. " +
	"You are the gradient engine: your only job is to give concrete, critical feedback " +
	"on one variable, given how it was used and what the downstream objective said about the result. " +
	"Pay attention to the role description of the variable and the context it is used in; " +
	"assume it will be used in a similar context in the future. " +
	"Explain what to change and why. Do not write a new version of the variable, that is the optimizer's job. " +
	"If the variable already serves its objective well, say so and give no further feedback."

// OptimizerSystemPrompt is the system prompt for every update call.
const OptimizerSystemPrompt = "You are part of an optimization system that improves text variables. " +
	"You will receive a variable, its role, and feedback collected about it. " +
	"Rewrite the variable so that it addresses the feedback while still serving its role. " +
	"Answer only with the improved variable between " + ImprovedOpenTag + " and " + ImprovedCloseTag + "."

// Tags delimiting the optimizer's answer.
const (
	ImprovedOpenTag  = "<IMPROVED_VARIABLE>"
	ImprovedCloseTag = "</IMPROVED_VARIABLE>"
)

// Exchange describes one generative call and its downstream feedback,
// as seen from the variable receiving the gradient.
type Exchange struct {
	// SystemPrompt is the system prompt used for the call. Empty if none.
	SystemPrompt string
	// Input and InputRole describe the user prompt of the call.
	Input     string
	InputRole string
	// Output and OutputRole describe the response.
	Output     string
	OutputRole string
	// Feedback is the response's accumulated gradient text.
	Feedback string
	// TargetRole is the role of the variable receiving feedback.
	TargetRole string
}

// LLMCallGradient asks for feedback on one predecessor of a generative call.
func LLMCallGradient(e Exchange) string {
	var sb strings.Builder

	sb.WriteString("You will give feedback to a variable with the following role: ")
	writeTag(&sb, "ROLE", e.TargetRole)
	sb.WriteString("\nHere is a conversation with a language model:\n\n<CONVERSATION>")
	if e.SystemPrompt != "" {
		sb.WriteString("\n")
		writeTag(&sb, "SYSTEM_PROMPT", e.SystemPrompt)
	}
	sb.WriteString("\n")
	writeTag(&sb, "LM_INPUT", e.Input)
	sb.WriteString("\n")
	writeTag(&sb, "LM_OUTPUT", e.Output)
	sb.WriteString("\n</CONVERSATION>\n\n")

	fmt.Fprintf(&sb, "The output is a %s. It received the following feedback from the rest of the system:\n", e.OutputRole)
	writeTag(&sb, "OBJECTIVE_FUNCTION", e.Feedback)
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "Give feedback on the %s (the input was a %s) so that the output improves according to that objective. ",
		e.TargetRole, e.InputRole)
	sb.WriteString("Only address the variable with the role above.")

	return sb.String()
}

// Evaluation describes one evaluation call, as seen from the evaluated candidate.
type Evaluation struct {
	Instruction     string
	InstructionRole string
	Candidate       string
	CandidateRole   string
	Critique        string
	Feedback        string
}

// TextLossGradient asks for feedback on the candidate of an evaluation.
func TextLossGradient(e Evaluation) string {
	var sb strings.Builder

	sb.WriteString("You will give feedback to a variable with the following role: ")
	writeTag(&sb, "ROLE", e.CandidateRole)
	sb.WriteString("\nThe variable was evaluated by a language model with this instruction:\n")
	writeTag(&sb, "EVALUATION_INSTRUCTION", e.Instruction)
	sb.WriteString("\n\nThe evaluated variable:\n")
	writeTag(&sb, "VARIABLE", e.Candidate)
	sb.WriteString("\n\nThe evaluation it received:\n")
	writeTag(&sb, "EVALUATION", e.Critique)
	sb.WriteString("\n\n")

	if e.Feedback != "" {
		writeTag(&sb, "OBJECTIVE_FUNCTION", e.Feedback)
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(&sb, "Based on the evaluation (the %s), give feedback on how to improve the %s.",
		e.InstructionRole, e.CandidateRole)

	return sb.String()
}

// Update describes one parameter rewrite.
type Update struct {
	Role        string
	Value       string
	Gradients   []string
	Constraints []string
	PastValues  []string
}

// UpdatePrompt asks the optimizer engine to rewrite a parameter.
//
// Gradients are concatenated in accumulation order; duplicates are kept.
func UpdatePrompt(u Update) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Here is the role of the variable you will improve: ")
	writeTag(&sb, "ROLE", u.Role)
	sb.WriteString("\n\nThe variable is the text within the following span:\n")
	writeTag(&sb, "VARIABLE", u.Value)
	sb.WriteString("\n\nHere is the feedback we got for the variable:\n\n<FEEDBACK>")
	for i, g := range u.Gradients {
		fmt.Fprintf(&sb, "\n<GRADIENT index=\"%d\">%s</GRADIENT>", i+1, g)
	}
	sb.WriteString("\n</FEEDBACK>\n\n")

	if len(u.PastValues) > 0 {
		sb.WriteString("Earlier versions of the variable, oldest first. Avoid oscillating between them:\n")
		for i, v := range u.PastValues {
			fmt.Fprintf(&sb, "<PAST_VALUE index=\"%d\">%s</PAST_VALUE>\n", i+1, v)
		}
		sb.WriteString("\n")
	}

	if len(u.Constraints) > 0 {
		sb.WriteString("You must follow these constraints:\n<CONSTRAINTS>\n")
		for i, c := range u.Constraints {
			fmt.Fprintf(&sb, "Constraint %d: %s\n", i+1, c)
		}
		sb.WriteString("</CONSTRAINTS>\n\n")
	}

	fmt.Fprintf(&sb, "Improve the variable (%s) using the feedback provided. ", u.Role)
	fmt.Fprintf(&sb, "Send the improved variable in the following format:\n\n%s{the improved variable}%s",
		ImprovedOpenTag, ImprovedCloseTag)

	return sb.String()
}

// ExtractImproved returns the text between the improved-variable tags, or the
// trimmed response if the tags are missing.
func ExtractImproved(response string) string {
	start := strings.Index(response, ImprovedOpenTag)
	if start < 0 {
		return strings.TrimSpace(response)
	}
	rest := response[start+len(ImprovedOpenTag):]
	end := strings.LastIndex(rest, ImprovedCloseTag)
	if end < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}

func writeTag(sb *strings.Builder, tag, content string) {
	sb.WriteString("<")
	sb.WriteString(tag)
	sb.WriteString(">")
	sb.WriteString(content)
	sb.WriteString("</")
	sb.WriteString(tag)
	sb.WriteString(">")
}
