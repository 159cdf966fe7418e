package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/swarmchat/core"
	"github.com/hupe1980/swarmchat/internal/util"
	"github.com/hupe1980/swarmchat/model"
)

// systemTemplate renders a role's system prompt followed by the artifacts the
// other roles produced earlier in the conversation. Map keys are ranged in
// sorted order, so the result is deterministic.
const systemTemplate = `{{.Prompt}}{{if .Artifacts}}

Work produced by the other agents so far:
{{range $name, $text := .Artifacts}}
### {{humanize $name | title}}
{{$text}}
{{end}}{{end}}`

// PostProcessor rewrites a role's response before it is recorded. It runs
// after the model call and may append extra material such as query results.
type PostProcessor interface {
	Process(ctx context.Context, role, instruction, response string) (string, error)
}

// PostProcessorFunc adapts a function to PostProcessor.
type PostProcessorFunc func(ctx context.Context, role, instruction, response string) (string, error)

// Process implements PostProcessor.
func (f PostProcessorFunc) Process(ctx context.Context, role, instruction, response string) (string, error) {
	return f(ctx, role, instruction, response)
}

// RoleAgent is one specialist of the swarm: a named system prompt bound to a
// model.
type RoleAgent struct {
	Name        string
	Description string
	Prompt      string
	Model       model.Model
	// Markers are lower-case phrases that route an instruction to this role.
	Markers       []string
	Temperature   float64
	MaxTokens     int
	PostProcessor PostProcessor
}

// Validate reports configuration errors.
func (r *RoleAgent) Validate() error {
	if r == nil {
		return errors.New("role is nil")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("role name is empty")
	}
	if r.Model == nil {
		return fmt.Errorf("role %q has no model", r.Name)
	}
	return nil
}

// Run asks the model for this role's answer to instruction. history holds the
// prior turns of the conversation; outputs the artifacts of every role so far.
func (r *RoleAgent) Run(ctx context.Context, history []model.Message, instruction string, outputs core.AgentOutputs) (string, error) {
	system, err := r.systemPrompt(outputs)
	if err != nil {
		return "", err
	}

	messages := make([]model.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, model.Message{Role: model.RoleUser, Content: instruction})

	resp, err := r.Model.Generate(ctx, model.Request{
		System:      system,
		Messages:    messages,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s model call: %w", r.Name, err)
	}

	text := resp.Text
	if r.PostProcessor != nil {
		text, err = r.PostProcessor.Process(ctx, r.Name, instruction, text)
		if err != nil {
			return "", fmt.Errorf("%s post-processing: %w", r.Name, err)
		}
	}

	return text, nil
}

func (r *RoleAgent) systemPrompt(outputs core.AgentOutputs) (string, error) {
	others := make(map[string]string, len(outputs))
	for name, text := range outputs {
		if name != r.Name && text != "" {
			others[name] = text
		}
	}
	if len(others) == 0 {
		return r.Prompt, nil
	}

	out, err := util.RenderTemplate(systemTemplate, struct {
		Prompt    string
		Artifacts map[string]string
	}{Prompt: r.Prompt, Artifacts: others})
	if err != nil {
		return "", fmt.Errorf("render system prompt for %s: %w", r.Name, err)
	}
	return out, nil
}

// matchIndex returns the earliest position at which one of the role's
// markers occurs in lowered, or -1.
func (r *RoleAgent) matchIndex(lowered string) int {
	best := -1
	for _, m := range r.Markers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if i := strings.Index(lowered, m); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}
