// Package toolserver exposes the fixed customer/ticket tool set over a
// JSON-lines byte stream. It is the only component allowed to mutate the
// record store.
package toolserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	contractx "github.com/warit-san/deskmesh/agent/contract"
	storex "github.com/warit-san/deskmesh/agent/store"
	"github.com/warit-san/deskmesh/pkg/protocol"
)

const maxFrameBytes = 1 << 20

type Server struct {
	store storex.Store
	log   zerolog.Logger

	// Serializes mutations per customer id so concurrent writes for the same
	// customer apply in arrival order and reads never observe a half-applied
	// update.
	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex
}

func New(st storex.Store, log zerolog.Logger) *Server {
	return &Server{
		store: st,
		log:   log,
		locks: make(map[int64]*sync.Mutex),
	}
}

// Serve reads request frames from r and writes one response frame per
// request to w, in issue order. It returns when the stream closes, ctx is
// done, or the stream errors.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	bw := bufio.NewWriter(w)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleFrame(ctx, line)
		if err := writeFrame(bw, resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return sc.Err()
}

func (s *Server) handleFrame(ctx context.Context, line []byte) protocol.Response {
	var req protocol.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return protocol.Fail("", &contractx.ErrorDescriptor{
			Kind:    contractx.KindValidation,
			Message: "malformed request frame",
		})
	}
	return s.Handle(ctx, req)
}

// Handle validates and dispatches one request. Malformed or unknown tool
// names never reach the store.
func (s *Server) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	if err := req.Validate(); err != nil {
		desc := contractx.Describe(err)
		return protocol.Fail(req.ID, &desc)
	}

	switch req.Method {
	case protocol.MethodToolsList:
		return protocol.OK(req.ID, map[string]any{"tools": Catalog()})
	case protocol.MethodToolsCall:
		result, err := s.execute(ctx, req.Params.Name, req.Params.Arguments)
		if err != nil {
			desc := contractx.Describe(err)
			s.log.Warn().
				Str("tool", req.Params.Name).
				Str("kind", string(desc.Kind)).
				Msg(desc.Message)
			return protocol.Fail(req.ID, &desc)
		}
		s.log.Debug().Str("tool", req.Params.Name).Msg("tool call ok")
		return protocol.OK(req.ID, result)
	default:
		return protocol.Fail(req.ID, &contractx.ErrorDescriptor{
			Kind:    contractx.KindValidation,
			Message: "unknown method: " + req.Method,
		})
	}
}

func (s *Server) lockCustomer(id int64) func() {
	s.lockMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.lockMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func writeFrame(w *bufio.Writer, resp protocol.Response) error {
	frame, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(frame, '\n')); err != nil {
		return err
	}
	return w.Flush()
}
