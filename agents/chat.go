package agents

import (
	"context"
	"strings"

	"github.com/martinemde/patchloop/agentloop"
)

const chatInstructions = `You are a helpful coding agent working in the project described below. Use the tools to inspect and change the code when the user asks you to.`

// ChatAgent holds every tool and keeps one session across turns.
type ChatAgent struct {
	session *agentloop.Session
}

// NewChatAgent creates a chat agent over env.
func NewChatAgent(rt Runtime, env agentloop.WriteEnvironment) *ChatAgent {
	reg := agentloop.NewToolRegistry()
	agentloop.RegisterReadOnlyTools(reg, env)
	agentloop.RegisterWriteTools(reg, env)
	return &ChatAgent{session: rt.newSession(rt.profile(RoleChat, chatInstructions, reg), env)}
}

// Send submits one user message and returns the model's answer.
func (c *ChatAgent) Send(ctx context.Context, message string) (string, error) {
	reply, err := c.session.Submit(ctx, message)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(reply.Text)
	if text == "" {
		text = "Sorry, I didn't get a response."
	}
	return text, nil
}

// Close ends the session.
func (c *ChatAgent) Close() { c.session.Close() }
