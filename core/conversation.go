package core

import "fmt"

// ConversationKey identifies one live conversation. It is comparable and used
// purely as a lookup key.
type ConversationKey struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
}

// NewConversationKey builds a key from its parts.
func NewConversationKey(userID, conversationID string) ConversationKey {
	return ConversationKey{UserID: userID, ConversationID: conversationID}
}

// String renders the key as "user:conversation".
func (k ConversationKey) String() string {
	return fmt.Sprintf("%s:%s", k.UserID, k.ConversationID)
}

// AgentOutputs maps a role name to the latest artifact that role produced
// during a single request. It is never persisted across requests.
type AgentOutputs map[string]string

// Clone returns a non-nil shallow copy.
func (o AgentOutputs) Clone() AgentOutputs {
	out := make(AgentOutputs, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Merge returns a new map holding o overlaid with other. Keys are never removed.
func (o AgentOutputs) Merge(other AgentOutputs) AgentOutputs {
	out := o.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Step is a single synthesized instruction sent to an Instance.
type Step string

// Pipeline is an ordered list of steps. An empty pipeline means direct mode:
// the raw request is sent as-is in a single call.
type Pipeline []Step

// IsDirect reports whether the pipeline carries no decomposition.
func (p Pipeline) IsDirect() bool { return len(p) == 0 }

// Strings returns the steps as plain strings.
func (p Pipeline) Strings() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = string(s)
	}
	return out
}
