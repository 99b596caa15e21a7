// Package mesh is the in-process messaging substrate: a registry of agent
// handlers addressed by logical role. It enforces the capability table on
// every delivery so a misplanned task fails at the boundary, not inside an
// agent.
package mesh

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	contractx "github.com/warit-san/deskmesh/agent/contract"
)

type Mesh struct {
	mu       sync.RWMutex
	handlers map[contractx.AgentRole]contractx.Handler
}

var _ contractx.Messenger = (*Mesh)(nil)

func New() *Mesh {
	return &Mesh{handlers: make(map[contractx.AgentRole]contractx.Handler)}
}

func (m *Mesh) Register(role contractx.AgentRole, h contractx.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[role] = h
}

// Send delivers task to the handler registered for role and awaits the reply.
func (m *Mesh) Send(ctx context.Context, role contractx.AgentRole, task contractx.Task) (contractx.TaskReply, error) {
	m.mu.RLock()
	h, ok := m.handlers[role]
	m.mu.RUnlock()
	if !ok {
		return contractx.TaskReply{}, fmt.Errorf("%w: no agent registered for role %q", contractx.ErrValidation, role)
	}
	if !contractx.Accepts(role, task.Kind) {
		return contractx.TaskReply{}, fmt.Errorf("%w: role %q does not accept task kind %q", contractx.ErrValidation, role, task.Kind)
	}

	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Role = role

	reply, err := h.Handle(ctx, task)
	if err != nil {
		return contractx.TaskReply{}, err
	}
	if reply.TaskID == "" {
		reply.TaskID = task.ID
	}
	return reply, nil
}
