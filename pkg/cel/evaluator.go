package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"sieve/pkg/models"
)

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("timestamp", cel.TimestampType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("properties", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// BuildFilterSetExpression returns the CEL source for a filter list ANDed
// with an optional raw condition.
func BuildFilterSetExpression(filters models.FilterList, condition string) (string, error) {
	expr, err := CompileList(filters)
	if err != nil {
		return "", err
	}
	if condition != "" {
		expr = "(" + expr + ") && (" + condition + ")"
	}
	return expr, nil
}

// CompileFilterSet compiles a filter list and its optional condition into a
// reusable program. The generated CEL source is returned alongside it.
func (e *Evaluator) CompileFilterSet(filters models.FilterList, condition string) (cel.Program, string, error) {
	if condition != "" {
		if err := e.ValidateFilterExpression(condition); err != nil {
			return nil, "", fmt.Errorf("invalid condition: %w", err)
		}
	}

	expr, err := BuildFilterSetExpression(filters, condition)
	if err != nil {
		return nil, "", err
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, expr, fmt.Errorf("failed to compile filter set: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, expr, fmt.Errorf("filter set expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, expr, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, expr, nil
}

// Matches evaluates a compiled filter set against a subject.
func (e *Evaluator) Matches(ctx context.Context, program cel.Program, subject Subject) (bool, error) {
	if program == nil {
		return false, fmt.Errorf("filter set program is nil")
	}

	result, _, err := program.ContextEval(ctx, e.activation(subject))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter set: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter set did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// MatchFilters compiles and evaluates a filter list in one step.
func (e *Evaluator) MatchFilters(ctx context.Context, filters models.FilterList, subject Subject) (bool, error) {
	program, _, err := e.CompileFilterSet(filters, "")
	if err != nil {
		return false, err
	}
	return e.Matches(ctx, program, subject)
}

func (e *Evaluator) activation(subject Subject) map[string]interface{} {
	properties := subject.Properties
	if properties == nil {
		properties = map[string]interface{}{}
	}
	metrics := subject.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}

	vars := map[string]interface{}{
		"properties": properties,
		"metrics":    metrics,
		"payload":    properties,
		"metadata":   map[string]interface{}{},
	}

	if msg := subject.envelope; msg != nil {
		vars["id"] = msg.ID
		vars["source"] = msg.Source
		vars["timestamp"] = msg.Timestamp
		vars["payload"] = msg.Payload
		vars["metadata"] = e.metadataToMap(msg.Metadata)
	}

	return vars
}

func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, msg models.MessageEnvelope) (bool, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return false, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return e.Matches(ctx, program, SubjectFromEnvelope(&msg))
}

func (e *Evaluator) metadataToMap(metadata models.Metadata) map[string]interface{} {
	result := make(map[string]interface{})

	if metadata.TraceID != "" {
		result["trace_id"] = metadata.TraceID
	}

	if metadata.FiltersApplied != nil {
		result["filters_applied"] = map[string]interface{}{
			"passed_at":      metadata.FiltersApplied.PassedAt,
			"filter_set_ids": metadata.FiltersApplied.FilterSetIDs,
		}
	}

	return result
}
