package dapengine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"

	"github.com/google/go-dap"

	"github.com/go-delve/steptest/pkg/logflags"
)

// Client is a Debug Adapter Protocol client. Requests are matched with their
// responses by sequence number; events are passed to the handler from the
// reader goroutine, in the order they arrive.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	log    logflags.Logger

	onEvent func(dap.EventMessage)

	// wmu serializes writes to conn.
	wmu sync.Mutex

	mu sync.Mutex
	// seq is used to track the sequence number of each
	// requests that the client sends to the server
	seq     int
	pending map[int]chan dap.ResponseMessage
	err     error

	done chan struct{}
}

// NewClient starts a Client over conn. Call Close to close the connection.
func NewClient(conn net.Conn, onEvent func(dap.EventMessage)) *Client {
	c := &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		log:     logflags.DAPLogger(),
		onEvent: onEvent,
		seq:     1,
		pending: map[int]chan dap.ResponseMessage{},
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done is closed when the connection is lost.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the read loop.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) readLoop() {
	for {
		m, err := dap.ReadProtocolMessage(c.reader)
		if err != nil {
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fieldErr) {
				// Messages this version of go-dap can not decode.
				c.log.Debugf("skipping message: %v", err)
				continue
			}
			c.shutdown(err)
			return
		}
		if logflags.DAP() {
			jsonmsg, _ := json.Marshal(m)
			c.log.Debug("[<- from server]", string(jsonmsg))
		}
		switch m := m.(type) {
		case dap.ResponseMessage:
			c.mu.Lock()
			ch := c.pending[m.GetResponse().RequestSeq]
			delete(c.pending, m.GetResponse().RequestSeq)
			c.mu.Unlock()
			if ch == nil {
				c.log.Warnf("unexpected response to request %d", m.GetResponse().RequestSeq)
				continue
			}
			ch <- m
		case dap.EventMessage:
			if c.onEvent != nil {
				c.onEvent(m)
			}
		}
	}
}

func (c *Client) shutdown(err error) {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		err = errConnectionClosed
	}
	c.mu.Lock()
	c.err = err
	c.pending = map[int]chan dap.ResponseMessage{}
	c.mu.Unlock()
	close(c.done)
}

var errConnectionClosed = errors.New("connection to debug adapter closed")

// call sends request and waits for its response. A response with success
// set to false is returned as a *ResponseError.
func (c *Client) call(ctx context.Context, request dap.RequestMessage) (dap.ResponseMessage, error) {
	ch := make(chan dap.ResponseMessage, 1)
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	req := request.GetRequest()
	req.Seq = c.seq
	c.seq++
	c.pending[req.Seq] = ch
	c.mu.Unlock()

	if err := c.send(request); err != nil {
		c.mu.Lock()
		delete(c.pending, req.Seq)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		if r := resp.GetResponse(); !r.Success {
			return resp, &ResponseError{Command: r.Command, Message: r.Message}
		}
		return resp, nil
	case <-c.done:
		return nil, c.Err()
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.Seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", req.Command, ctx.Err())
	}
}

func (c *Client) send(request dap.Message) error {
	if logflags.DAP() {
		jsonmsg, _ := json.Marshal(request)
		c.log.Debug("[-> to server]", string(jsonmsg))
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return dap.WriteProtocolMessage(c.conn, request)
}

// ResponseError is a response reporting a failed request.
type ResponseError struct {
	Command string
	Message string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s request failed: %s", e.Command, e.Message)
}

// Initialize sends an 'initialize' request.
func (c *Client) Initialize(ctx context.Context) (*dap.InitializeResponse, error) {
	request := &dap.InitializeRequest{Request: *newRequest("initialize")}
	request.Arguments = dap.InitializeRequestArguments{
		ClientID:        "steptest",
		ClientName:      "steptest",
		AdapterID:       "go",
		PathFormat:      "path",
		LinesStartAt1:   true,
		ColumnsStartAt1: true,
		Locale:          "en-us",
	}
	resp, err := c.call(ctx, request)
	if err != nil {
		return nil, err
	}
	initResp, ok := resp.(*dap.InitializeResponse)
	if !ok {
		return nil, unexpected(resp)
	}
	return initResp, nil
}

// Launch sends a 'launch' request for a compiled program.
func (c *Client) Launch(ctx context.Context, program string, args []string, cwd string) error {
	launchArgs := map[string]interface{}{
		"request":         "launch",
		"mode":            "exec",
		"program":         program,
		"stopOnEntry":     false,
		"stackTraceDepth": maxStackDepth,
	}
	if len(args) > 0 {
		launchArgs["args"] = args
	}
	if cwd != "" {
		launchArgs["cwd"] = cwd
	}
	raw, err := json.Marshal(launchArgs)
	if err != nil {
		return err
	}
	request := &dap.LaunchRequest{Request: *newRequest("launch"), Arguments: raw}
	_, err = c.call(ctx, request)
	return err
}

// SetBreakpoints sends a 'setBreakpoints' request for the 1-based lines of
// file and returns the breakpoints the adapter accepted.
func (c *Client) SetBreakpoints(ctx context.Context, file string, lines []int) ([]dap.Breakpoint, error) {
	request := &dap.SetBreakpointsRequest{Request: *newRequest("setBreakpoints")}
	request.Arguments = dap.SetBreakpointsArguments{
		Source: dap.Source{
			Name: filepath.Base(file),
			Path: file,
		},
		Breakpoints: make([]dap.SourceBreakpoint, len(lines)),
	}
	for i, l := range lines {
		request.Arguments.Breakpoints[i].Line = l
	}
	resp, err := c.call(ctx, request)
	if err != nil {
		return nil, err
	}
	bpResp, ok := resp.(*dap.SetBreakpointsResponse)
	if !ok {
		return nil, unexpected(resp)
	}
	return bpResp.Body.Breakpoints, nil
}

// ConfigurationDone sends a 'configurationDone' request, which starts the
// program.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	request := &dap.ConfigurationDoneRequest{Request: *newRequest("configurationDone")}
	_, err := c.call(ctx, request)
	return err
}

// Continue sends a 'continue' request.
func (c *Client) Continue(ctx context.Context, thread int) error {
	request := &dap.ContinueRequest{Request: *newRequest("continue")}
	request.Arguments.ThreadId = thread
	_, err := c.call(ctx, request)
	return err
}

// StepIn sends a 'stepIn' request.
func (c *Client) StepIn(ctx context.Context, thread int) error {
	request := &dap.StepInRequest{Request: *newRequest("stepIn")}
	request.Arguments.ThreadId = thread
	_, err := c.call(ctx, request)
	return err
}

// StepOut sends a 'stepOut' request.
func (c *Client) StepOut(ctx context.Context, thread int) error {
	request := &dap.StepOutRequest{Request: *newRequest("stepOut")}
	request.Arguments.ThreadId = thread
	_, err := c.call(ctx, request)
	return err
}

// StackTrace sends a 'stackTrace' request and returns the frames of thread,
// innermost first, together with the total number of frames.
func (c *Client) StackTrace(ctx context.Context, thread int) ([]dap.StackFrame, int, error) {
	request := &dap.StackTraceRequest{Request: *newRequest("stackTrace")}
	request.Arguments.ThreadId = thread
	resp, err := c.call(ctx, request)
	if err != nil {
		return nil, 0, err
	}
	stResp, ok := resp.(*dap.StackTraceResponse)
	if !ok {
		return nil, 0, unexpected(resp)
	}
	total := stResp.Body.TotalFrames
	if total < len(stResp.Body.StackFrames) {
		total = len(stResp.Body.StackFrames)
	}
	return stResp.Body.StackFrames, total, nil
}

// Disconnect sends a 'disconnect' request. The adapter kills programs it
// launched.
func (c *Client) Disconnect(ctx context.Context) error {
	request := &dap.DisconnectRequest{Request: *newRequest("disconnect")}
	_, err := c.call(ctx, request)
	return err
}

func newRequest(command string) *dap.Request {
	request := &dap.Request{}
	request.Type = "request"
	request.Command = command
	return request
}

func unexpected(m dap.Message) error {
	return fmt.Errorf("unexpected message %T", m)
}
