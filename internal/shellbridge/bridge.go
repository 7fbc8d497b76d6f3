package shellbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Raj-Manghani/terminus-prime/internal/logutil"
	"github.com/docker/go-units"
)

// Status messages carried by terminal events.
const (
	MessageConnected   = "SSH connection established."
	MessageShellClosed = "Shell closed."
	MessageDisconnect  = "Disconnected."
	MessageSuperseded  = "superseded by new connection"
)

const (
	sgrRed   = "\x1b[31m"
	sgrReset = "\x1b[0m"

	// writeQueueSize is the per-connection hand-off between the loop and the
	// writer goroutine. The byte-bounded backlog lives in the loop.
	writeQueueSize = 16

	// postQueueSize bounds transport results waiting for the loop.
	postQueueSize = 64
)

// Options tunes queue sizes and the requested PTY. Zero values take defaults.
type Options struct {
	RequestQueue     int
	EventQueue       int
	MaxPendingEvents int
	MaxPendingWrite  int
	ReadBufferSize   int
	PTY              PTY
}

func (o Options) withDefaults() Options {
	if o.RequestQueue <= 0 {
		o.RequestQueue = 64
	}
	if o.EventQueue <= 0 {
		o.EventQueue = 256
	}
	if o.MaxPendingEvents <= 0 {
		o.MaxPendingEvents = 1024
	}
	if o.MaxPendingWrite <= 0 {
		o.MaxPendingWrite = 1 << 20
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 32 * 1024
	}
	if o.PTY.Term == "" {
		o.PTY.Term = DefaultTerm
	}
	if o.PTY.Cols == 0 || o.PTY.Rows == 0 {
		o.PTY.Cols, o.PTY.Rows = 80, 24
	}
	return o
}

type requestKind int

const (
	reqConnect requestKind = iota
	reqSend
	reqResize
	reqDisconnect
)

type request struct {
	kind   requestKind
	target Target
	data   []byte
	cols   uint16
	rows   uint16
}

type postKind int

const (
	postReady postKind = iota
	postShell
	postData
	postFailed
	postClosed
)

// post is a transport result sent back to the loop.
type post struct {
	attempt uint64
	kind    postKind
	conn    Conn
	shell   Shell
	data    []byte
	err     error
}

// release closes resources carried by a post the loop will not adopt.
func (p post) release() {
	if p.shell != nil {
		p.shell.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

type outbound struct {
	data   []byte
	resize bool
	cols   uint16
	rows   uint16
}

// connection is one attempt. Only the loop touches conn and shell.
type connection struct {
	attempt uint64
	label   string
	ctx     context.Context
	cancel  context.CancelFunc
	writes  chan outbound
	started time.Time

	conn  Conn
	shell Shell

	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

func (c *connection) post(b *Bridge, p post) bool {
	p.attempt = c.attempt
	select {
	case b.posts <- p:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// close releases the shell channel, then the transport.
func (c *connection) close() {
	c.cancel()
	if c.shell != nil {
		if err := c.shell.Close(); err != nil && !errors.Is(err, io.EOF) {
			log.Printf("[bridge] attempt %d: close shell: %v", c.attempt, err)
		}
		c.shell = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			log.Printf("[bridge] attempt %d: close transport: %v", c.attempt, err)
		}
		c.conn = nil
	}
}

// Bridge owns at most one live shell connection. Create with New, then Start.
type Bridge struct {
	dialer Dialer
	opts   Options

	requests chan request
	posts    chan post
	events   chan Event
	stop     chan struct{}
	done     chan struct{}

	started  atomic.Bool
	stopOnce sync.Once
	tracker  *stateTracker

	// Owned by the loop goroutine.
	runCtx            context.Context
	attempt           uint64
	cur               *connection
	pendingEvents     []Event
	pendingWrites     []outbound
	pendingWriteBytes int
}

// New creates a bridge in StateIdle.
func New(dialer Dialer, opts Options) *Bridge {
	opts = opts.withDefaults()
	return &Bridge{
		dialer:   dialer,
		opts:     opts,
		requests: make(chan request, opts.RequestQueue),
		posts:    make(chan post, postQueueSize),
		events:   make(chan Event, opts.EventQueue),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		tracker:  newStateTracker(),
	}
}

// Start launches the loop goroutine. It runs until ctx is cancelled or Stop
// is called, then tears down any live connection and closes Events.
func (b *Bridge) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	go b.run(ctx)
}

// Stop terminates the loop and waits for it to exit.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	if b.started.Load() {
		<-b.done
	}
}

// Events returns the ordered event stream. It is closed when the loop exits.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// State returns the state of the current attempt.
func (b *Bridge) State() ConnectionState {
	return b.tracker.get()
}

// FailureReason returns the reason of the last failure while in StateFailed.
func (b *Bridge) FailureReason() string {
	return b.tracker.failureReason()
}

// Transitions returns the recent state history, oldest first.
func (b *Bridge) Transitions() []StateTransition {
	return b.tracker.history()
}

// Connect starts a new attempt, superseding any live one.
func (b *Bridge) Connect(target Target) {
	b.submit(request{kind: reqConnect, target: target})
}

// Send writes data to the shell. Without a streaming shell the bytes come
// back as an EventEcho instead. Input that would grow the write backlog past
// MaxPendingWrite is dropped.
func (b *Bridge) Send(data []byte) {
	if len(data) == 0 {
		return
	}
	b.submit(request{kind: reqSend, data: append([]byte(nil), data...)})
}

// Resize changes the PTY size. Ignored unless a shell is streaming.
func (b *Bridge) Resize(cols, rows uint16) {
	b.submit(request{kind: reqResize, cols: cols, rows: rows})
}

// Disconnect closes the live connection, if any.
func (b *Bridge) Disconnect() {
	b.submit(request{kind: reqDisconnect})
}

func (b *Bridge) submit(r request) {
	select {
	case b.requests <- r:
	case <-b.stop:
	case <-b.done:
	}
}

func (b *Bridge) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.runCtx = ctx
	defer func() {
		b.teardown(MessageDisconnect)
		cancel()
		b.flushEvents()
		close(b.events)
		close(b.done)
	}()

	for {
		var (
			events   chan<- Event
			next     Event
			posts    <-chan post
			writes   chan<- outbound
			write    outbound
		)
		if len(b.pendingEvents) > 0 {
			events = b.events
			next = b.pendingEvents[0]
		}
		if len(b.pendingEvents) < b.opts.MaxPendingEvents {
			posts = b.posts
		}
		if len(b.pendingWrites) > 0 && b.cur != nil && b.tracker.get() == StateStreaming {
			writes = b.cur.writes
			write = b.pendingWrites[0]
		}

		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case events <- next:
			b.pendingEvents[0] = Event{}
			b.pendingEvents = b.pendingEvents[1:]
		case writes <- write:
			b.pendingWrites = b.pendingWrites[1:]
			b.pendingWriteBytes -= len(write.data)
		case r := <-b.requests:
			b.handleRequest(r)
		case p := <-posts:
			b.handlePost(p)
		}
	}
}

// flushEvents moves as many pending events as fit into the channel buffer.
func (b *Bridge) flushEvents() {
	for i, e := range b.pendingEvents {
		select {
		case b.events <- e:
		default:
			log.Printf("[bridge] dropped %d undelivered events on stop", len(b.pendingEvents)-i)
			b.pendingEvents = nil
			return
		}
	}
	b.pendingEvents = nil
}

func (b *Bridge) emit(e Event) {
	b.pendingEvents = append(b.pendingEvents, e)
}

func (b *Bridge) handleRequest(r request) {
	switch r.kind {
	case reqConnect:
		b.connect(r.target)
	case reqSend:
		if b.cur == nil || b.tracker.get() != StateStreaming {
			if len(b.pendingEvents) >= b.opts.MaxPendingEvents {
				log.Printf("[bridge] event backlog full, dropped %d bytes of echo", len(r.data))
				return
			}
			b.emit(dataEvent(b.attempt, EventEcho, r.data))
			return
		}
		if b.pendingWriteBytes+len(r.data) > b.opts.MaxPendingWrite {
			log.Printf("[bridge] attempt %d: write backlog full (%s), dropped %d bytes of input",
				b.cur.attempt, units.HumanSize(float64(b.pendingWriteBytes)), len(r.data))
			return
		}
		b.pendingWrites = append(b.pendingWrites, outbound{data: r.data})
		b.pendingWriteBytes += len(r.data)
	case reqResize:
		if r.cols == 0 || r.rows == 0 || b.cur == nil || b.tracker.get() != StateStreaming {
			return
		}
		b.pendingWrites = append(b.pendingWrites, outbound{resize: true, cols: r.cols, rows: r.rows})
	case reqDisconnect:
		if b.tracker.get() == StateIdle {
			b.tracker.set(b.attempt, StateClosed, "")
			b.emit(statusEvent(b.attempt, StatusDisconnected, MessageDisconnect))
			return
		}
		b.teardown(MessageDisconnect)
	}
}

func (b *Bridge) connect(target Target) {
	if b.cur != nil && b.tracker.get().IsLive() {
		log.Printf("[bridge] attempt %d superseded", b.cur.attempt)
		b.teardown(MessageSuperseded)
	}

	b.attempt++
	ctx, cancel := context.WithCancel(b.runCtx)
	c := &connection{
		attempt: b.attempt,
		label:   logutil.Target(target.Username, target.Host, target.Port),
		ctx:     ctx,
		cancel:  cancel,
		writes:  make(chan outbound, writeQueueSize),
		started: time.Now(),
	}
	b.cur = c
	b.tracker.set(c.attempt, StateConnecting, "")
	log.Printf("[bridge] attempt %d: connecting to %s", c.attempt, c.label)
	go b.establish(c, target)
}

func (b *Bridge) handlePost(p post) {
	c := b.cur
	state := b.tracker.get()
	if c == nil || p.attempt != c.attempt || !state.IsLive() {
		p.release()
		return
	}

	switch p.kind {
	case postReady:
		c.conn = p.conn
		b.tracker.set(c.attempt, StateReady, "")
		b.emit(statusEvent(c.attempt, StatusConnected, MessageConnected))
	case postShell:
		c.shell = p.shell
		b.tracker.set(c.attempt, StateStreaming, "")
		go c.writeLoop(b, p.shell)
	case postData:
		if state != StateStreaming {
			return
		}
		c.bytesIn.Add(int64(len(p.data)))
		b.emit(dataEvent(c.attempt, EventData, p.data))
	case postFailed:
		b.finish(c, StateFailed, StatusError, p.err.Error(), false)
	case postClosed:
		b.finish(c, StateClosed, StatusDisconnected, MessageShellClosed, false)
	}
}

// teardown closes the live attempt locally and drops its undelivered output.
// No-op when nothing is live.
func (b *Bridge) teardown(message string) {
	if b.cur == nil || !b.tracker.get().IsLive() {
		return
	}
	b.finish(b.cur, StateClosed, StatusDisconnected, message, true)
}

// finish closes c, moves it to a terminal state and emits its final event.
// With purge, data events of c still waiting for delivery are discarded.
func (b *Bridge) finish(c *connection, final ConnectionState, status Status, message string, purge bool) {
	b.tracker.set(c.attempt, StateClosing, "")
	c.close()
	b.pendingWrites = nil
	b.pendingWriteBytes = 0
	if purge {
		if n := b.purgeData(c.attempt); n > 0 {
			log.Printf("[bridge] attempt %d: discarded %d undelivered data events", c.attempt, n)
		}
	}

	reason := ""
	if final == StateFailed {
		reason = message
	}
	b.tracker.set(c.attempt, final, reason)
	b.emit(statusEvent(c.attempt, status, message))

	log.Printf("[bridge] attempt %d to %s %s after %s (in=%s out=%s): %s",
		c.attempt, c.label, final, time.Since(c.started).Round(time.Millisecond),
		units.HumanSize(float64(c.bytesIn.Load())), units.HumanSize(float64(c.bytesOut.Load())),
		logutil.SanitizeForLog(message))
}

// purgeData removes undelivered data events of attempt and returns how many.
// Events still sitting in the channel buffer are taken back first so that
// they are filtered too; the relative order of what remains is unchanged.
func (b *Bridge) purgeData(attempt uint64) int {
	var buffered []Event
reclaim:
	for {
		select {
		case e := <-b.events:
			buffered = append(buffered, e)
		default:
			break reclaim
		}
	}
	if len(buffered) > 0 {
		b.pendingEvents = append(buffered, b.pendingEvents...)
	}

	kept := b.pendingEvents[:0]
	for _, e := range b.pendingEvents {
		if e.Type == EventData && e.Attempt == attempt {
			continue
		}
		kept = append(kept, e)
	}
	n := len(b.pendingEvents) - len(kept)
	for i := len(kept); i < len(b.pendingEvents); i++ {
		b.pendingEvents[i] = Event{}
	}
	b.pendingEvents = kept
	return n
}

// establish runs on its own goroutine: dial, open the shell, then stream.
func (b *Bridge) establish(c *connection, target Target) {
	conn, err := b.dialer.Dial(c.ctx, target)
	if err != nil {
		c.post(b, post{kind: postFailed, err: fmt.Errorf("connection error: %w", err)})
		return
	}
	if !c.post(b, post{kind: postReady, conn: conn}) {
		conn.Close()
		return
	}

	shell, err := conn.OpenShell(c.ctx, b.opts.PTY)
	if err != nil {
		c.post(b, post{kind: postFailed, err: fmt.Errorf("shell error: %w", err)})
		return
	}
	if !c.post(b, post{kind: postShell, shell: shell}) {
		shell.Close()
		return
	}

	var wg sync.WaitGroup
	var readErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		readErr = c.pump(b, shell.Stdout(), false)
	}()
	if stderr := shell.Stderr(); stderr != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.pump(b, stderr, true)
		}()
	}
	wg.Wait()

	if readErr != nil {
		c.post(b, post{kind: postFailed, err: fmt.Errorf("stream error: %w", readErr)})
		return
	}
	c.post(b, post{kind: postClosed})
}

// pump forwards reads from r to the loop until EOF or cancellation.
func (c *connection) pump(b *Bridge, r io.Reader, stderr bool) error {
	buf := make([]byte, b.opts.ReadBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			var data []byte
			if stderr {
				data = make([]byte, 0, n+len(sgrRed)+len(sgrReset))
				data = append(data, sgrRed...)
				data = append(data, buf[:n]...)
				data = append(data, sgrReset...)
			} else {
				data = append([]byte(nil), buf[:n]...)
			}
			if !c.post(b, post{kind: postData, data: data}) {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || c.ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// writeLoop applies queued writes and resizes in order.
func (c *connection) writeLoop(b *Bridge, shell Shell) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case out := <-c.writes:
			if out.resize {
				if err := shell.Resize(out.cols, out.rows); err != nil {
					log.Printf("[bridge] attempt %d: resize %dx%d: %v", c.attempt, out.cols, out.rows, err)
				}
				continue
			}
			n, err := shell.Write(out.data)
			c.bytesOut.Add(int64(n))
			if err != nil {
				if errors.Is(err, io.EOF) || c.ctx.Err() != nil {
					return
				}
				c.post(b, post{kind: postFailed, err: fmt.Errorf("write error: %w", err)})
				return
			}
		}
	}
}
