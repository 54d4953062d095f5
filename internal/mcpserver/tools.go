package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowd/internal/orchestrator"
	"github.com/fyrsmithlabs/workflowd/internal/workflow"
)

// addTool registers a typed tool handler wrapped with invocation metrics.
func addTool[In, Out any](s *Server, tool *mcp.Tool, fn func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, Out, error)) {
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		s.metrics.IncrementActive(ctx, tool.Name)
		start := time.Now()
		res, out, err := fn(ctx, req, args)
		s.metrics.DecrementActive(ctx, tool.Name)
		s.metrics.RecordInvocation(ctx, tool.Name, time.Since(start), err)
		return res, out, err
	})
}

// taskSummary is the tool-facing view of a task. Full history stays on
// the HTTP API; tools return just what the assistant needs to proceed.
type taskSummary struct {
	ID           string   `json:"id" jsonschema:"Task identifier"`
	Status       string   `json:"status" jsonschema:"running, blocked, completed, or failed"`
	StatusReason string   `json:"status_reason,omitempty" jsonschema:"Why the task is blocked or failed"`
	Level        string   `json:"level" jsonschema:"Complexity level L1-L4"`
	Mode         string   `json:"mode" jsonschema:"Execution mode"`
	Plan         []string `json:"plan,omitempty" jsonschema:"Planned phase sequence"`
	CurrentPhase string   `json:"current_phase,omitempty" jsonschema:"Phase awaiting a result"`
	Attempts     int      `json:"attempts" jsonschema:"Execution attempts for the current phase"`
	Unmet        []string `json:"unmet,omitempty" jsonschema:"Unmet gate requirements if blocked"`
	Archived     bool     `json:"archived,omitempty" jsonschema:"True once archived"`
}

func summarize(t *workflow.Task) taskSummary {
	out := taskSummary{
		ID:           t.ID,
		Status:       string(t.Status),
		StatusReason: t.StatusReason,
		Level:        t.Level.String(),
		Mode:         string(t.Mode),
		Attempts:     t.Attempts,
		Unmet:        t.Unmet,
		Archived:     t.Archived,
	}
	for _, ph := range t.Plan {
		out.Plan = append(out.Plan, string(ph))
	}
	if cur, ok := t.CurrentPhase(); ok {
		out.CurrentPhase = string(cur)
	}
	return out
}

type submitInput struct {
	Description   string `json:"description" jsonschema:"required,Task description"`
	ScopeEstimate int    `json:"scope_estimate,omitempty" jsonschema:"Estimated number of files touched"`
	Mode          string `json:"mode,omitempty" jsonschema:"standard, full_auto, or single_focus"`
	Dimension     string `json:"dimension,omitempty" jsonschema:"Focus dimension for single_focus mode"`
	Hold          bool   `json:"hold,omitempty" jsonschema:"Create without starting so the mode can still be changed"`
}

type statusInput struct {
	TaskID string `json:"task_id" jsonschema:"required,Task identifier"`
}

type reportPhaseInput struct {
	TaskID         string             `json:"task_id" jsonschema:"required,Task identifier"`
	Phase          string             `json:"phase" jsonschema:"required,Phase the result is for"`
	Succeeded      bool               `json:"succeeded" jsonschema:"Whether the phase execution succeeded"`
	Metrics        map[string]float64 `json:"metrics,omitempty" jsonschema:"Measured quality metrics (coverage, complexity, duplication)"`
	Checks         map[string]bool    `json:"checks,omitempty" jsonschema:"Named check outcomes (architecture_review, security_audit, ...)"`
	FailureReason  string             `json:"failure_reason,omitempty" jsonschema:"Why the phase failed, when succeeded is false"`
	SuggestedLevel string             `json:"suggested_level,omitempty" jsonschema:"Level the phase suggests (L1-L4), used for de-escalation"`
}

type forceModeInput struct {
	TaskID    string `json:"task_id" jsonschema:"required,Task identifier"`
	Mode      string `json:"mode" jsonschema:"required,standard, full_auto, or single_focus"`
	Dimension string `json:"dimension,omitempty" jsonschema:"Focus dimension for single_focus mode"`
}

type abortInput struct {
	TaskID string `json:"task_id" jsonschema:"required,Task identifier"`
	Reason string `json:"reason,omitempty" jsonschema:"Why the task is being aborted"`
}

func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        "task_submit",
		Description: "Submit a coding task; it is classified by complexity and given a phase plan",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args submitInput) (*mcp.CallToolResult, taskSummary, error) {
		task, err := s.engine.SubmitTask(ctx, &orchestrator.SubmitRequest{
			Description:   args.Description,
			ScopeEstimate: args.ScopeEstimate,
			Mode:          workflow.ExecutionMode(args.Mode),
			Dimension:     workflow.FocusDimension(args.Dimension),
			Hold:          args.Hold,
		})
		if err != nil {
			s.logger.Warn("task_submit failed", zap.Error(err))
			return nil, taskSummary{}, err
		}
		return nil, summarize(task), nil
	})

	addTool(s, &mcp.Tool{
		Name:        "task_status",
		Description: "Get the current phase, status, and plan of a task",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args statusInput) (*mcp.CallToolResult, taskSummary, error) {
		task, err := s.engine.GetStatus(ctx, args.TaskID)
		if err != nil {
			return nil, taskSummary{}, err
		}
		return nil, summarize(task), nil
	})

	addTool(s, &mcp.Tool{
		Name:        "task_report_phase",
		Description: "Report the outcome of the task's current phase; gates, retries, and escalation are applied",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args reportPhaseInput) (*mcp.CallToolResult, taskSummary, error) {
		result := workflow.PhaseResult{
			Phase:         workflow.Phase(args.Phase),
			Succeeded:     args.Succeeded,
			Metrics:       args.Metrics,
			Checks:        args.Checks,
			FailureReason: args.FailureReason,
		}
		if args.SuggestedLevel != "" {
			lvl, err := workflow.ParseLevel(args.SuggestedLevel)
			if err != nil {
				return nil, taskSummary{}, err
			}
			result.SuggestedLevel = lvl
		}

		task, err := s.engine.ReportPhase(ctx, args.TaskID, result)
		if err != nil {
			s.logger.Warn("task_report_phase failed",
				zap.String("task_id", args.TaskID),
				zap.String("phase", args.Phase),
				zap.Error(err))
			return nil, taskSummary{}, err
		}
		return nil, summarize(task), nil
	})

	addTool(s, &mcp.Tool{
		Name:        "task_force_mode",
		Description: "Override the execution mode of a task that has not started yet",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args forceModeInput) (*mcp.CallToolResult, taskSummary, error) {
		err := s.engine.ForceMode(ctx, args.TaskID,
			workflow.ExecutionMode(args.Mode), workflow.FocusDimension(args.Dimension))
		if err != nil {
			return nil, taskSummary{}, err
		}
		task, err := s.engine.GetStatus(ctx, args.TaskID)
		if err != nil {
			return nil, taskSummary{}, err
		}
		return nil, summarize(task), nil
	})

	addTool(s, &mcp.Tool{
		Name:        "task_abort",
		Description: "Abort a task; terminal tasks are left unchanged",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args abortInput) (*mcp.CallToolResult, taskSummary, error) {
		if err := s.engine.AbortTask(ctx, args.TaskID, args.Reason); err != nil {
			return nil, taskSummary{}, err
		}
		task, err := s.engine.GetStatus(ctx, args.TaskID)
		if err != nil {
			return nil, taskSummary{}, err
		}
		return nil, summarize(task), nil
	})
}
