package core

// PromptID names one of the analysis prompts the MCP server publishes.
type PromptID string

const (
	PromptInterrogate PromptID = "interrogate_task"
	PromptExpand      PromptID = "expand_task"
	PromptEstimate    PromptID = "estimate_task"
	PromptCritique    PromptID = "critique_task"
	PromptUserStories PromptID = "generate_user_stories"
	PromptRewrite     PromptID = "rewrite_task"
	PromptCode        PromptID = "prepare_for_coding"
	PromptConfirm     PromptID = "confirm_implementation"
)

// AllPrompts lists every prompt in the order they are published.
var AllPrompts = []PromptID{
	PromptInterrogate,
	PromptExpand,
	PromptCritique,
	PromptUserStories,
	PromptRewrite,
	PromptEstimate,
	PromptCode,
	PromptConfirm,
}

// WritesCode reports whether the prompt authorizes the agent to change code.
// Only the code tag's prompt does.
func (p PromptID) WritesCode() bool {
	return p == PromptCode
}

// ActionKind is the closed set of outcomes of resolving a tag.
type ActionKind int

const (
	ActionUnrecognized ActionKind = iota
	ActionPromptTrigger
	ActionListAppend
)

func (k ActionKind) String() string {
	switch k {
	case ActionPromptTrigger:
		return "prompt_trigger"
	case ActionListAppend:
		return "list_append"
	default:
		return "unrecognized"
	}
}

// ActionSpec says how a tag should be handled. Prompt is only set for
// ActionPromptTrigger.
type ActionSpec struct {
	Kind   ActionKind
	Prompt PromptID
}

// Removable reports whether a tag resolved to this spec may be deleted from
// the task once handled. Unrecognized tags are always left in place.
func (a ActionSpec) Removable() bool {
	return a.Kind == ActionPromptTrigger || a.Kind == ActionListAppend
}

// Resolve maps an action tag kind to its ActionSpec. Persona tags never reach
// Resolve; passing one yields ActionUnrecognized.
func Resolve(kind TagKind) ActionSpec {
	switch kind {
	case KindInterrogate:
		return ActionSpec{Kind: ActionPromptTrigger, Prompt: PromptInterrogate}
	case KindExpand:
		return ActionSpec{Kind: ActionPromptTrigger, Prompt: PromptExpand}
	case KindEstimate:
		return ActionSpec{Kind: ActionPromptTrigger, Prompt: PromptEstimate}
	case KindCritique:
		return ActionSpec{Kind: ActionPromptTrigger, Prompt: PromptCritique}
	case KindUserStories:
		return ActionSpec{Kind: ActionPromptTrigger, Prompt: PromptUserStories}
	case KindRewrite:
		return ActionSpec{Kind: ActionPromptTrigger, Prompt: PromptRewrite}
	case KindCode:
		return ActionSpec{Kind: ActionPromptTrigger, Prompt: PromptCode}
	case KindConfirm:
		return ActionSpec{Kind: ActionPromptTrigger, Prompt: PromptConfirm}
	case KindToDo:
		return ActionSpec{Kind: ActionListAppend}
	default:
		return ActionSpec{Kind: ActionUnrecognized}
	}
}
