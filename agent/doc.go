// Package agent provides the swarm that answers a conversation: a set of
// role agents (project manager, software engineer, QA tester, deployment
// engineer, data engineer) sharing one history.
//
// A Swarm implements core.Instance. Each instruction is routed to a single
// role by the markers it contains ("software engineer", "tester", ...);
// instructions without a marker go to the role that answered last. The
// role's model sees its system prompt, the artifacts of the other roles and
// the bounded conversation history.
//
// NewFactory turns a role provider into a core.Factory so the registry can
// build one swarm per conversation.
package agent
