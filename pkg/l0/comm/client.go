package comm

import (
	"context"
	"io"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/l0link/pkg/framework"
	"github.com/robotalks/l0link/pkg/l0/msgs"
)

// MessageHandler is called when a message is received from the device.
type MessageHandler interface {
	HandleMessage(context.Context, msgs.Outgoing)
}

// HandleMessageFunc is func type of MessageHandler.
type HandleMessageFunc func(context.Context, msgs.Outgoing)

// HandleMessage implements MessageHandler.
func (f HandleMessageFunc) HandleMessage(ctx context.Context, msg msgs.Outgoing) {
	f(ctx, msg)
}

// Result is the result of a request using Do.
type Result struct {
	Err   error
	Reply msgs.Outgoing
}

// Request represents a message waiting for acknowledgement.
type Request struct {
	msg      msgs.Incoming
	resultCh chan Result
	next     *Request
}

// Message returns the request message.
func (r *Request) Message() msgs.Incoming {
	return r.msg
}

// ResultChan returns the chan to retrieve result.
func (r *Request) ResultChan() <-chan Result {
	return r.resultCh
}

// Client is the host side of the link over a byte stream, e.g. a
// serial port or a websocket connection to the device.
//
// The device acknowledges messages in order, so every Acknowledgement
// completes the oldest pending Request. A Request abandoned by DoWait
// is removed, and if its Acknowledgement arrives later it completes the
// next Request instead, so callers should drop the link after a timeout.
type Client struct {
	ReadWriter io.ReadWriter
	// Handler receives every message after request matching, if set.
	Handler  MessageHandler
	Notifier StateNotifier
	// PacketSize splits writes, 0 writes a frame at once.
	PacketSize int

	encoder  *FrameEncoder
	acc      *Accumulator
	sendLock sync.Mutex
	reqsHead *Request
	reqsTail *Request
	reqsLock sync.Mutex
}

// NewClient creates a Client over rw.
func NewClient(rw io.ReadWriter) *Client {
	return &Client{
		ReadWriter: rw,
		PacketSize: PacketSize,
		encoder:    NewFrameEncoder(EncodeBufferSize),
		acc:        NewAccumulator(AccumulatorSize),
	}
}

// Send writes a message without expecting a reply.
func (c *Client) Send(msg msgs.Incoming) error {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()
	return c.write(msg)
}

// Do sends a message and returns a Request for the acknowledgement.
func (c *Client) Do(msg msgs.Incoming) *Request {
	req := &Request{msg: msg, resultCh: make(chan Result, 1)}
	c.sendLock.Lock()
	defer c.sendLock.Unlock()
	c.enqueue(req)
	if err := c.write(msg); err != nil {
		if c.remove(req) {
			req.resultCh <- Result{Err: err}
		}
	}
	return req
}

// DoWait sends a message and waits for the acknowledgement.
func (c *Client) DoWait(ctx context.Context, msg msgs.Incoming) (msgs.Outgoing, error) {
	req := c.Do(msg)
	select {
	case r := <-req.ResultChan():
		return r.Reply, r.Err
	case <-ctx.Done():
		c.remove(req)
		return 0, ctx.Err()
	}
}

// HandleMessage implements MessageHandler.
func (c *Client) HandleMessage(ctx context.Context, msg msgs.Outgoing) {
	if msg == msgs.Acknowledgement {
		c.reqsLock.Lock()
		req := c.reqsHead
		if req != nil {
			if c.reqsHead = req.next; c.reqsHead == nil {
				c.reqsTail = nil
			}
			req.next = nil
		}
		c.reqsLock.Unlock()
		if req != nil {
			req.resultCh <- Result{Reply: msg}
		}
	}
	if c.Handler != nil {
		c.Handler.HandleMessage(ctx, msg)
	}
}

// Run implements Runnable. It reads from the device until the stream
// fails or ctx is done. Pending requests fail with ErrNoReply.
func (c *Client) Run(ctx context.Context) error {
	c.notify(ctx, Connected)
	defer c.notify(ctx, Disconnected)
	defer c.failPending()
	defer c.acc.Reset()
	if closer, ok := c.ReadWriter.(io.Closer); ok {
		return fx.RunWithContextCloser(ctx, closer, func() error { return c.readLoop(ctx) })
	}
	return fx.RunWithContext(ctx, func() error { return c.readLoop(ctx) })
}

func (c *Client) readLoop(ctx context.Context) error {
	var buf [512]byte
	for {
		n, err := c.ReadWriter.Read(buf[:])
		window := buf[:n]
		for len(window) > 0 {
			var msg msgs.Outgoing
			result := c.acc.Feed(window, &msg)
			switch result.Status {
			case FeedSuccess:
				c.HandleMessage(ctx, msg)
			case FeedDeserError, FeedOverFull:
				glog.Warningf("dropped frame from device: %s", result.Status)
			}
			window = result.Remaining
		}
		if err != nil {
			return err
		}
	}
}

func (c *Client) write(msg msgs.Incoming) error {
	frame, err := c.encoder.Encode(msg)
	if err != nil {
		return err
	}
	size := c.PacketSize
	if size <= 0 {
		size = len(frame)
	}
	for len(frame) > 0 {
		n := min(len(frame), size)
		if _, err := c.ReadWriter.Write(frame[:n]); err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

func (c *Client) enqueue(req *Request) {
	c.reqsLock.Lock()
	if c.reqsHead == nil {
		c.reqsHead = req
	} else {
		c.reqsTail.next = req
	}
	c.reqsTail = req
	c.reqsLock.Unlock()
}

func (c *Client) remove(req *Request) bool {
	c.reqsLock.Lock()
	defer c.reqsLock.Unlock()
	var prev *Request
	for curr := c.reqsHead; curr != nil; prev, curr = curr, curr.next {
		if curr != req {
			continue
		}
		if prev == nil {
			c.reqsHead = curr.next
		} else {
			prev.next = curr.next
		}
		if c.reqsTail == curr {
			c.reqsTail = prev
		}
		curr.next = nil
		return true
	}
	return false
}

func (c *Client) failPending() {
	c.reqsLock.Lock()
	head := c.reqsHead
	c.reqsHead, c.reqsTail = nil, nil
	c.reqsLock.Unlock()
	for ; head != nil; head = head.next {
		head.resultCh <- Result{Err: ErrNoReply}
	}
}

func (c *Client) notify(ctx context.Context, state ConnState) {
	if c.Notifier != nil {
		c.Notifier.StateChanged(ctx, state)
	}
}
