package core

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/valter-silva-au/taskflow/pkg/models"
)

// AppendSeparator joins existing description text and appended text.
const AppendSeparator = "\n\n---\n\n"

// PromptDefinition describes a published prompt and its arguments.
type PromptDefinition struct {
	ID          PromptID
	Description string
	// TaskArg describes the required taskId argument.
	TaskArg string
	// AcceptsPersona is true for prompts with an optional persona argument.
	AcceptsPersona bool
}

var promptDefinitions = map[PromptID]PromptDefinition{
	PromptInterrogate: {
		ID:          PromptInterrogate,
		Description: "Ask clarifying questions about a task covering requirements, constraints and success criteria",
		TaskArg:     "ID of the task to interrogate",
	},
	PromptExpand: {
		ID:          PromptExpand,
		Description: "Add technical detail to a task: APIs, data structures, UI patterns, acceptance criteria, edge cases and testing",
		TaskArg:     "ID of the task to expand",
	},
	PromptCritique: {
		ID:             PromptCritique,
		Description:    "Critique a task, pointing out ambiguities and technical risks and suggesting improvements",
		TaskArg:        "ID of the task to critique",
		AcceptsPersona: true,
	},
	PromptUserStories: {
		ID:          PromptUserStories,
		Description: "Generate user stories from the task requirements",
		TaskArg:     "ID of the task",
	},
	PromptRewrite: {
		ID:          PromptRewrite,
		Description: "Rewrite the task description in a structured, unambiguous form",
		TaskArg:     "ID of the task to rewrite",
	},
	PromptEstimate: {
		ID:          PromptEstimate,
		Description: "Comment on the level of effort and refactoring the task needs",
		TaskArg:     "ID of the task to estimate",
	},
	PromptCode: {
		ID:          PromptCode,
		Description: "Review the task, list the files to change and then implement it",
		TaskArg:     "ID of the task marked for coding",
	},
	PromptConfirm: {
		ID:          PromptConfirm,
		Description: "Verify that the task has been fully implemented",
		TaskArg:     "ID of the task to verify",
	},
}

// LookupPrompt returns the definition of a published prompt.
func LookupPrompt(id PromptID) (PromptDefinition, bool) {
	def, ok := promptDefinitions[id]
	return def, ok
}

// PromptData is the input to RenderPrompt.
type PromptData struct {
	Task *models.Task
	// Persona is the viewpoint to adopt; only critique_task uses it.
	Persona string
	// Images are local paths of the task's downloaded images.
	Images []string
}

// RenderPrompt renders the user message of prompt id for data.
func RenderPrompt(id PromptID, data PromptData) (string, error) {
	tmpl, ok := promptTemplates[id]
	if !ok {
		return "", NewStoreError(KindValidation, "rendering prompt", fmt.Errorf("unknown prompt %q", id))
	}
	if data.Task == nil {
		return "", NewStoreError(KindValidation, "rendering prompt", fmt.Errorf("prompt %s needs a task", id))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", id, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

var promptFuncs = template.FuncMap{
	"join": strings.Join,
	"orDefault": func(def, s string) string {
		if strings.TrimSpace(s) == "" {
			return def
		}
		return s
	},
	"quote": func(s string) string { return fmt.Sprintf("%q", s) },
}

const taskDetailsTemplate = `{{define "details"}}## Task: {{.Task.Title}}

**Status:** {{.Task.Status}}
**Priority:** {{.Task.Priority}}
**MCP Tags:** {{join .Task.Tags ", "}}
**URL:** {{.Task.URL}}

**Description:**
{{orDefault "(No description provided)" .Task.Description}}
{{- if .Task.Content}}

**Page content:**
{{.Task.Content}}
{{- end}}

**Images:** {{if .Images}}{{len .Images}} images downloaded to:
{{- range .Images}}
- {{.}}
{{- end}}{{else}}None{{end}}{{end}}`

const commentFooter = `{{define "comment"}}When the analysis is written, call the add_comment tool with taskId {{quote .Task.ID}} to save it on the task. Saving the comment is part of handling the tag and is not optional.

Then tell the user what you found and why it matters, and what the next step for this task should be. A bare "Comment added." is not an answer.{{end}}`

var promptSources = map[PromptID]string{
	PromptInterrogate: `You are helping to clarify the requirements of a task.

{{template "details" .}}

Do the following:
1. Read the task, including any images.
2. Ask 3-5 specific questions that pin down success criteria, technical constraints, user expectations, integration points and the implementation approach.
3. After each question, say why you are asking it.
4. Briefly critique the current description.

Format:

## Questions
1. [Question] - **Why:** [Reason]

## Critique
[What is unclear, missing or could be improved]

{{template "comment" .}}`,

	PromptExpand: `You are adding detail to a task description so it can be implemented without guesswork.

{{template "details" .}}

Do the following:
1. Work out what information is missing.
2. Add technical detail: APIs or libraries, data structures and types, UI patterns, file paths.
3. Write clear acceptance criteria.
4. List the edge cases to handle.
5. Propose a testing approach.

Format the expanded description with the sections Goal, Technical Approach, Acceptance Criteria, Edge Cases and Testing.

{{template "comment" .}}`,

	PromptCritique: `{{if .Persona}}You are {{.Persona}}. Approach this task from that professional perspective.

{{end}}{{template "details" .}}

Do the following:
1. Identify ambiguities and missing information.
2. Point out technical issues and risks.
3. Suggest improvements to the approach.
4. Rate complexity from 1 to 5, 5 being the most complex.
5. Outline the implementation steps.

Format:

## Analysis
## Issues & Risks
## Suggested Improvements
## Complexity: [1-5]
## Implementation Steps

{{if .Persona}}Explain how the {{.Persona}} perspective shaped the critique. {{end}}{{template "comment" .}}`,

	PromptUserStories: `Generate user stories for this task.

{{template "details" .}}

Do the following:
1. Write 2-4 user stories as "As a [user type], I want [goal] so that [benefit]".
2. Cover different users and scenarios, and give each story an acceptance line.

Format:

## User Stories

1. **As a** [user type], **I want** [goal] **so that** [benefit]
   - Acceptance: [What done looks like]

When the stories are written, call the update_task tool with taskId {{quote .Task.ID}} and put the stories in appendDescription. They are added to the end of the existing description after a "---" separator; never replace the description. Updating the task is part of handling the tag and is not optional.

Then tell the user which perspectives the stories cover and how they sharpen the acceptance criteria. A bare "Description updated." is not an answer.`,

	PromptRewrite: `Rewrite this task so it is as clear as possible.

{{template "details" .}}

Do the following:
1. Use clear, actionable language and remove ambiguity.
2. Keep it concise but complete enough to implement.

Format:

## Goal
## Approach
## Acceptance Criteria
## Notes

When the rewrite is done, call the update_task tool with taskId {{quote .Task.ID}} and the new text in description, replacing the old description. Updating the task is part of handling the tag and is not optional.

Then tell the user what was unclear before, what you assumed, and why the task is ready for its next step. A bare "Description updated." is not an answer.`,

	PromptEstimate: `Estimate the effort and refactoring this task needs.

{{template "details" .}}

Do the following:
1. Assess complexity and scope.
2. Size it as Small, Medium, Large or Extra Large and give a time range.
3. Point out refactoring opportunities and technical debt.
4. Note architectural considerations and risks.

Format:

## Effort Estimate
**Size:** [Small / Medium / Large / Extra Large]
**Time Range:** [X-Y hours / days]

## Scope Analysis
## Refactoring Opportunities
## Technical Considerations
## Risks & Complexities
## Recommendation

Say whether the task should be split into smaller tasks. {{template "comment" .}}`,

	PromptCode: `This task is marked for implementation. Prepare it and then IMPLEMENT IT.

{{template "details" .}}

Do the following:
1. Check that everything needed to implement it is present.
2. List the files that will likely change.
3. Identify dependencies and blockers.
4. Write a short implementation checklist.
5. Start implementing immediately.

The "code" tag is the only tag that authorizes code changes. Every other tag is analysis only. After the plan, use your file and shell tools to make the changes; planning alone does not handle this tag.

Format the plan as:

## Implementation Plan
**Files to Change:**
**Dependencies:**
**Checklist:**
**Ready to code:** [Yes/No, with the reason if No]

While you work, tell the user which files you are changing and why, what decisions you made, how the result meets the acceptance criteria, and what testing you did. If you are blocked, say what you tried.`,

	PromptConfirm: `Verify that this task has been fully implemented.

{{template "details" .}}

Do the following:
1. Review what the task was meant to achieve.
2. Check that the implementation exists in the codebase.
3. Check every acceptance criterion, including tests and documentation where relevant.
4. List gaps and incomplete work.
5. Judge whether it is ready for production.

Format:

## Implementation Status
**Status:** [Complete / Incomplete / Partially Complete]

## What Was Done
## Files Changed/Created
## Verification Checklist
## Gaps / Missing Work
## Production Readiness
## Recommendation

Say whether the task can be marked Done. {{template "comment" .}}`,
}

var promptTemplates = func() map[PromptID]*template.Template {
	out := make(map[PromptID]*template.Template, len(promptSources))
	for id, src := range promptSources {
		t := template.New(string(id)).Funcs(promptFuncs)
		t = template.Must(t.Parse(taskDetailsTemplate))
		t = template.Must(t.Parse(commentFooter))
		out[id] = template.Must(t.Parse(src))
	}
	return out
}()
