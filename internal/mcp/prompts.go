package mcp

import (
	"context"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/taskflow/internal/core"
)

func (s *Server) registerPrompts() {
	for _, id := range core.AllPrompts {
		def, ok := core.LookupPrompt(id)
		if !ok {
			continue
		}
		args := []*gomcp.PromptArgument{{
			Name:        "taskId",
			Description: def.TaskArg,
			Required:    true,
		}}
		if def.AcceptsPersona {
			args = append(args, &gomcp.PromptArgument{
				Name:        "persona",
				Description: "Professional perspective to critique from (e.g. Architect, Security Engineer)",
			})
		}
		s.server.AddPrompt(&gomcp.Prompt{
			Name:        string(id),
			Description: def.Description,
			Arguments:   args,
		}, s.promptHandler(def))
	}
}

// promptHandler reads the task fresh, downloads its images and renders the
// prompt text as a single user message.
func (s *Server) promptHandler(def core.PromptDefinition) gomcp.PromptHandler {
	return func(ctx context.Context, req *gomcp.GetPromptRequest) (*gomcp.GetPromptResult, error) {
		taskID := req.Params.Arguments["taskId"]
		if taskID == "" {
			return nil, fmt.Errorf("prompt %s: taskId is required", def.ID)
		}

		task, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("prompt %s: getting task %s: %w", def.ID, taskID, err)
		}

		var images []string
		if s.images != nil {
			images = s.images.FetchTaskImages(ctx, task)
		}

		data := core.PromptData{Task: task, Images: images}
		if def.AcceptsPersona {
			data.Persona = req.Params.Arguments["persona"]
		}
		text, err := core.RenderPrompt(def.ID, data)
		if err != nil {
			return nil, fmt.Errorf("prompt %s: %w", def.ID, err)
		}

		s.log.Debug().
			Str("prompt", string(def.ID)).
			Str("task_id", taskID).
			Int("images", len(images)).
			Msg("prompt rendered")

		return &gomcp.GetPromptResult{
			Description: def.Description,
			Messages: []*gomcp.PromptMessage{{
				Role:    "user",
				Content: &gomcp.TextContent{Text: text},
			}},
		}, nil
	}
}
