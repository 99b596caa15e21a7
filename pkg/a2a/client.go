package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	contractx "github.com/warit-san/deskmesh/agent/contract"
)

const maxResponseSizeBytes = 2 << 20

type ClientConfig struct {
	DataURL    string        `envconfig:"DATA_URL" split_words:"true" default:"http://127.0.0.1:8001"`
	SupportURL string        `envconfig:"SUPPORT_URL" split_words:"true" default:"http://127.0.0.1:8002"`
	RouterURL  string        `envconfig:"ROUTER_URL" split_words:"true" default:"http://127.0.0.1:8003"`
	Timeout    time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

// Client is the HTTP messenger: role-addressed message/send calls. The
// mapping from logical role to endpoint is static configuration.
type Client struct {
	endpoints  map[contractx.AgentRole]string
	httpClient *http.Client
}

var _ contractx.Messenger = (*Client)(nil)

func NewClient(cfg ClientConfig) (*Client, error) {
	endpoints := map[contractx.AgentRole]string{
		contractx.RoleData:    strings.TrimRight(strings.TrimSpace(cfg.DataURL), "/"),
		contractx.RoleSupport: strings.TrimRight(strings.TrimSpace(cfg.SupportURL), "/"),
		contractx.RoleRouter:  strings.TrimRight(strings.TrimSpace(cfg.RouterURL), "/"),
	}
	for role, endpoint := range endpoints {
		if endpoint == "" {
			return nil, fmt.Errorf("endpoint for role %q is required", role)
		}
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return nil, fmt.Errorf("invalid endpoint for role %q: %w", role, err)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func MustNewClient(cfg ClientConfig) *Client {
	c, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Send posts a message/send envelope to the role's endpoint and decodes the
// reply. Transport failures surface as internal-kind errors.
func (c *Client) Send(ctx context.Context, role contractx.AgentRole, task contractx.Task) (contractx.TaskReply, error) {
	endpoint, ok := c.endpoints[role]
	if !ok {
		return contractx.TaskReply{}, fmt.Errorf("%w: no endpoint for role %q", contractx.ErrValidation, role)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	task.Role = role

	msg, err := TaskMessage(task)
	if err != nil {
		return contractx.TaskReply{}, fmt.Errorf("%w: encode task: %v", contractx.ErrInternal, err)
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: Version,
		ID:      uuid.NewString(),
		Method:  MethodMessageSend,
		Params:  rpcParams{Message: msg},
	})
	if err != nil {
		return contractx.TaskReply{}, fmt.Errorf("%w: encode request: %v", contractx.ErrInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/", bytes.NewReader(body))
	if err != nil {
		return contractx.TaskReply{}, fmt.Errorf("%w: build request: %v", contractx.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return contractx.TaskReply{}, fmt.Errorf("%w: send to %q: %v", contractx.ErrTimeout, role, err)
		}
		return contractx.TaskReply{}, fmt.Errorf("%w: send to %q: %v", contractx.ErrInternal, role, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return contractx.TaskReply{}, fmt.Errorf("%w: read reply: %v", contractx.ErrInternal, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return contractx.TaskReply{}, fmt.Errorf("%w: agent %q replied status=%d", contractx.ErrInternal, role, resp.StatusCode)
	}

	var parsed rpcResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return contractx.TaskReply{}, fmt.Errorf("%w: decode reply: %v", contractx.ErrInternal, err)
	}
	if parsed.Error != nil {
		return contractx.TaskReply{}, parsed.Error
	}
	if parsed.Result == nil {
		return contractx.TaskReply{}, fmt.Errorf("%w: empty rpc result", contractx.ErrInternal)
	}

	reply, err := decodeReply(*parsed.Result)
	if err != nil {
		return contractx.TaskReply{}, fmt.Errorf("%w: decode task reply: %v", contractx.ErrInternal, err)
	}
	return reply, nil
}
