package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/taskflow/pkg/models"
)

const (
	uriReadyTasks      = "notion://tasks/ready"
	uriInProgressTasks = "notion://tasks/in-progress"
	uriTaggedTasks     = "notion://tasks/with-mcp-tags"
	uriTaskPrefix      = "notion://task/"
	jsonMIMEType       = "application/json"
)

func (s *Server) registerResources() {
	s.server.AddResource(&gomcp.Resource{
		URI:         uriReadyTasks,
		Name:        "Ready Tasks with MCP Tags",
		Description: "All tasks in Ready status that have MCP tags for processing",
		MIMEType:    jsonMIMEType,
	}, s.statusResource(models.StatusReady))

	s.server.AddResource(&gomcp.Resource{
		URI:         uriInProgressTasks,
		Name:        "In Progress Tasks with MCP Tags",
		Description: "All tasks currently In Progress that have MCP tags",
		MIMEType:    jsonMIMEType,
	}, s.statusResource(models.StatusInProgress))

	s.server.AddResource(&gomcp.Resource{
		URI:         uriTaggedTasks,
		Name:        "All Tasks with MCP Tags",
		Description: "All tasks with MCP tags regardless of status",
		MIMEType:    jsonMIMEType,
	}, s.handleTaggedTasksResource)

	s.server.AddResourceTemplate(&gomcp.ResourceTemplate{
		URITemplate: uriTaskPrefix + "{id}",
		Name:        "Task",
		Description: "One task with its rendered page content",
		MIMEType:    jsonMIMEType,
	}, s.handleTaskResource)
}

func (s *Server) statusResource(status models.TaskStatus) gomcp.ResourceHandler {
	return func(ctx context.Context, req *gomcp.ReadResourceRequest) (*gomcp.ReadResourceResult, error) {
		tasks, err := s.store.ListTasksByStatus(ctx, status, true)
		if err != nil {
			return nil, fmt.Errorf("listing %s tasks: %w", status, err)
		}
		return jsonResource(req.Params.URI, tasks)
	}
}

func (s *Server) handleTaggedTasksResource(ctx context.Context, req *gomcp.ReadResourceRequest) (*gomcp.ReadResourceResult, error) {
	tasks, err := s.store.ListTaggedTasks(ctx, queryLimit, "")
	if err != nil {
		return nil, fmt.Errorf("listing tagged tasks: %w", err)
	}
	return jsonResource(req.Params.URI, tasks)
}

func (s *Server) handleTaskResource(ctx context.Context, req *gomcp.ReadResourceRequest) (*gomcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id, ok := strings.CutPrefix(uri, uriTaskPrefix)
	if !ok || id == "" {
		return nil, gomcp.ResourceNotFoundError(uri)
	}

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, gomcp.ResourceNotFoundError(uri)
		}
		return nil, fmt.Errorf("getting task %s: %w", id, err)
	}
	return jsonResource(uri, task)
}

func jsonResource(uri string, v any) (*gomcp.ReadResourceResult, error) {
	if tasks, ok := v.([]*models.Task); ok && tasks == nil {
		v = []*models.Task{}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", uri, err)
	}
	return &gomcp.ReadResourceResult{
		Contents: []*gomcp.ResourceContents{{
			URI:      uri,
			MIMEType: jsonMIMEType,
			Text:     string(data),
		}},
	}, nil
}
