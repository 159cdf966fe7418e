package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/swarmchat/core"
	"github.com/hupe1980/swarmchat/logging"
	"github.com/hupe1980/swarmchat/model"
)

// SwarmOptions configures a Swarm.
type SwarmOptions struct {
	// MaxHistory bounds the number of messages kept as conversation history.
	// Zero or less keeps everything.
	MaxHistory int
	// MaxModelCalls bounds the model calls over the swarm's lifetime. Zero or
	// less means unlimited.
	MaxModelCalls int
	Logger        logging.Logger
}

// Swarm is a group of role agents sharing one conversation. It implements
// core.Instance: every Invoke is answered by exactly one role.
//
// Invocations on the same swarm are serialized; the history is only ever
// touched by the invocation holding the turn.
type Swarm struct {
	roles      []*RoleAgent
	maxHistory int
	limiter    *CallLimiter
	logger     logging.Logger

	turn    chan struct{}
	active  int
	history []model.Message
}

var _ core.Instance = (*Swarm)(nil)

// NewSwarm builds a swarm over roles. The first role starts out active.
func NewSwarm(roles []*RoleAgent, optFns ...func(o *SwarmOptions)) (*Swarm, error) {
	opts := SwarmOptions{
		MaxHistory: 20,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if len(roles) == 0 {
		return nil, errors.New("swarm needs at least one role")
	}
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("duplicate role %q", r.Name)
		}
		seen[r.Name] = struct{}{}
	}

	return &Swarm{
		roles:      append([]*RoleAgent(nil), roles...),
		maxHistory: opts.MaxHistory,
		limiter:    NewCallLimiter(opts.MaxModelCalls),
		logger:     logging.OrNoOp(opts.Logger),
		turn:       make(chan struct{}, 1),
	}, nil
}

// Invoke routes instruction to a role, runs it and records the exchange in the
// history. The returned outputs are outputs plus the role's response under
// the role's name.
func (s *Swarm) Invoke(ctx context.Context, instruction string, outputs core.AgentOutputs) (string, core.AgentOutputs, error) {
	select {
	case s.turn <- struct{}{}:
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
	defer func() { <-s.turn }()

	idx := s.routeLocked(instruction)
	role := s.roles[idx]
	s.active = idx

	if err := s.limiter.Increment(); err != nil {
		return "", nil, err
	}

	s.logger.Debug("routing instruction", "role", role.Name, "history", len(s.history))

	history := append([]model.Message(nil), s.history...)
	resp, err := role.Run(ctx, history, instruction, outputs)
	if err != nil {
		s.logger.Warn("role failed", "role", role.Name, "error", err)
		return "", nil, err
	}
	// The caller may have given up while the model was still answering; an
	// answer nobody received must not become conversation memory.
	if err := ctx.Err(); err != nil {
		s.logger.Warn("role answered after caller gave up", "role", role.Name, "error", err)
		return "", nil, err
	}

	s.history = append(s.history,
		model.Message{Role: model.RoleUser, Content: instruction},
		model.Message{Role: model.RoleAssistant, Content: resp},
	)
	if s.maxHistory > 0 && len(s.history) > s.maxHistory {
		s.history = append([]model.Message(nil), s.history[len(s.history)-s.maxHistory:]...)
	}

	return resp, outputs.Merge(core.AgentOutputs{role.Name: resp}), nil
}

// routeLocked picks the role whose marker occurs earliest in instruction;
// ties go to the role registered first. Without a marker the active role
// answers.
func (s *Swarm) routeLocked(instruction string) int {
	lowered := strings.ToLower(instruction)
	best, bestPos := s.active, -1
	for i, r := range s.roles {
		if pos := r.matchIndex(lowered); pos >= 0 && (bestPos < 0 || pos < bestPos) {
			best, bestPos = i, pos
		}
	}
	return best
}

// Active returns the name of the role that answers unmarked instructions.
func (s *Swarm) Active() string {
	s.turn <- struct{}{}
	defer func() { <-s.turn }()
	return s.roles[s.active].Name
}

// History returns a copy of the recorded conversation.
func (s *Swarm) History() []model.Message {
	s.turn <- struct{}{}
	defer func() { <-s.turn }()
	return append([]model.Message(nil), s.history...)
}

// Roles returns the role names in registration order.
func (s *Swarm) Roles() []string {
	names := make([]string, len(s.roles))
	for i, r := range s.roles {
		names[i] = r.Name
	}
	return names
}

// ModelCalls returns the number of model calls made so far.
func (s *Swarm) ModelCalls() int { return s.limiter.Count() }
