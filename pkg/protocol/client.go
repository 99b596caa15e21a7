package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	contractx "github.com/warit-san/deskmesh/agent/contract"
)

const maxFrameBytes = 1 << 20

// Client issues synchronous tool calls over an ordered byte stream. A single
// reader goroutine owns the read side and delivers frames to waiters by
// request id, so an abandoned call never corrupts the stream for the next
// one and a pipelining server keeps working.
type Client struct {
	writeMu sync.Mutex
	w       *bufio.Writer

	mu      sync.Mutex
	pending map[string]chan Response
	readErr error

	newID func() string
}

var _ contractx.ToolInvoker = (*Client)(nil)

func NewClient(r io.Reader, w io.Writer) *Client {
	c := &Client{
		w:       bufio.NewWriter(w),
		pending: make(map[string]chan Response),
		newID:   func() string { return uuid.NewString() },
	}
	go c.readLoop(r)
	return c
}

// Invoke sends one tools/call frame and blocks for the matching result.
// Transport failures surface as internal-kind errors; structured tool errors
// come back inside the ToolResult.
func (c *Client) Invoke(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
	resp, err := c.roundTrip(ctx, NewCall(c.newID(), tool, args))
	if err != nil {
		return contractx.ToolResult{}, err
	}
	if resp.Error != nil {
		return contractx.ToolResult{Tool: tool, Error: resp.Error}, nil
	}
	return contractx.ToolResult{Tool: tool, Content: resp.Result}, nil
}

// ListTools fetches the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.roundTrip(ctx, Request{JSONRPC: Version, ID: c.newID(), Method: MethodToolsList})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

func (c *Client) roundTrip(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, fmt.Errorf("%w: %v", contractx.ErrTimeout, err)
	}

	ch, err := c.register(req.ID)
	if err != nil {
		return Response{}, err
	}
	defer c.deregister(req.ID)

	if err := c.write(req); err != nil {
		return Response{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, fmt.Errorf("%w: tool stream closed", contractx.ErrInternal)
		}
		return resp, nil
	case <-ctx.Done():
		// The stream stays open; the reader drops the stale frame later.
		return Response{}, fmt.Errorf("%w: awaiting result for %s: %v", contractx.ErrTimeout, req.Params.Name, ctx.Err())
	}
}

func (c *Client) write(req Request) error {
	frame, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", contractx.ErrInternal, err)
	}
	frame = append(frame, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(frame); err != nil {
		return fmt.Errorf("%w: write request: %v", contractx.ErrInternal, err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush request: %v", contractx.ErrInternal, err)
	}
	return nil
}

func (c *Client) register(id string) (chan Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	ch := make(chan Response, 1)
	c.pending[id] = ch
	return ch, nil
}

func (c *Client) deregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Client) readLoop(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.fail(fmt.Errorf("%w: decode response: %v", contractx.ErrInternal, err))
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
		// Frames for abandoned calls are dropped.
	}

	if err := sc.Err(); err != nil {
		c.fail(fmt.Errorf("%w: read response: %v", contractx.ErrInternal, err))
		return
	}
	c.fail(fmt.Errorf("%w: tool stream closed", contractx.ErrInternal))
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}
