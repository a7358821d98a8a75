// Package conn owns the WebSocket connection actor: the socket itself, the
// request/query-set ID counters, the pending-request correlation map, and
// retry of the initial dial with linearly growing, capped backoff. A
// connection lost after Start has returned is reported as a Disconnected
// event and is not redialled. It is the only component that ever writes a
// frame to the server.
package conn

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/moduledb/moduledb-go/internal/protocol"
)

const subprotocol = "v2.bsatn.spacetimedb"

// Compression selects the envelope tag negotiated with the server via the
// connection URL's compression query parameter.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionGzip   Compression = "gzip"
	CompressionBrotli Compression = "brotli"
)

func (c Compression) tag() byte {
	switch c {
	case CompressionGzip:
		return protocol.CompressionGzip
	case CompressionBrotli:
		return protocol.CompressionBrotli
	default:
		return protocol.CompressionNone
	}
}

// Config configures one Connection.
type Config struct {
	Host        string
	Database    string
	Token       string
	Compression Compression
	TLS         bool

	// Reconnection.
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.MaxAttempts == 0 {
		out.MaxAttempts = 10
	}
	if out.BaseBackoff == 0 {
		out.BaseBackoff = 500 * time.Millisecond
	}
	if out.MaxBackoff == 0 {
		out.MaxBackoff = 30 * time.Second
	}
	if out.Compression == "" {
		out.Compression = CompressionNone
	}
	return out
}

// RequestDescriptor describes an in-flight request awaiting a correlated
// server response. It is exclusively owned by the Connection actor.
type RequestDescriptor struct {
	Kind       RequestKind
	QuerySetID uint32
	Queries    []string
}

// RequestKind discriminates the five correlatable client message shapes.
type RequestKind int

const (
	RequestSubscribe RequestKind = iota
	RequestUnsubscribe
	RequestOneOffQuery
	RequestCallReducer
	RequestCallProcedure
)

// Events delivered to the façade. Exactly one field is meaningful per
// event; this mirrors the sum-typed dispatch the spec describes for
// callbacks, kept as a single struct here to avoid an explosion of channel
// types on the façade side.
type Event struct {
	Connected          *protocol.InitialConnection
	SubscribeApplied   *protocol.SubscribeApplied
	UnsubscribeApplied *protocol.UnsubscribeApplied
	SubscriptionError  *protocol.SubscriptionError
	Transaction        *protocol.TransactionUpdate
	OneOffQueryResult  *protocol.OneOffQueryResult
	ReducerResult      *protocol.ReducerResult
	ProcedureResult    *protocol.ProcedureResult
	Disconnected       *DisconnectedEvent
	ConnectionFailed   bool
}

// DisconnectedEvent reports a lost connection. During Start's dial loop,
// Attempt is the number of the dial that just failed, and a retry follows;
// when no attempts remain, an Event with ConnectionFailed is sent instead.
// A connection lost after Start has returned is reported with Attempt 0.
type DisconnectedEvent struct {
	Reason  error
	Attempt int
}

// Connection is the single-writer actor owning one WebSocket to the server.
type Connection struct {
	cfg Config

	mu         sync.Mutex
	ws         *websocket.Conn
	nextReqID  uint32
	nextQSID   uint32
	pending    map[uint32]RequestDescriptor
	connected  bool
	identity   [32]byte
	connID     [16]byte
	token      string

	events chan Event

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a Connection in the Disconnected state. Call Start to open
// the socket and begin the read/write actor loops.
func New(cfg Config) *Connection {
	full := cfg.withDefaults()
	return &Connection{
		cfg:       full,
		nextReqID: 1,
		nextQSID:  1,
		pending:   make(map[uint32]RequestDescriptor),
		token:     full.Token,
		events:    make(chan Event, 64),
	}
}

// Events returns the channel of decoded server events. The façade is the
// sole consumer.
func (c *Connection) Events() <-chan Event { return c.events }

func (c *Connection) wsURL() string {
	scheme := "ws"
	if c.cfg.TLS {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   c.cfg.Host,
		Path:   fmt.Sprintf("/v1/database/%s/subscribe", c.cfg.Database),
	}
	q := u.Query()
	q.Set("compression", string(c.cfg.Compression))
	u.RawQuery = q.Encode()
	return u.String()
}

// Start dials the server and launches the read loop under an errgroup,
// restarting both ID counters at 1. Outbound frames are written directly
// by the request methods through send.
func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.mu.Lock()
	c.nextReqID = 1
	c.nextQSID = 1
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	c.group = g

	attempt := 0
	for {
		attempt++
		if err := c.dial(); err != nil {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			if attempt >= c.cfg.MaxAttempts {
				c.emit(Event{ConnectionFailed: true})
				return fmt.Errorf("conn: exhausted %d attempts: %w", attempt, err)
			}
			c.emit(Event{Disconnected: &DisconnectedEvent{Reason: err, Attempt: attempt}})
			backoff := c.cfg.BaseBackoff * time.Duration(attempt)
			if backoff > c.cfg.MaxBackoff {
				backoff = c.cfg.MaxBackoff
			}
			select {
			case <-time.After(backoff):
				continue
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		break
	}

	g.Go(func() error { return c.readLoop(gctx) })
	return nil
}

func (c *Connection) dial() error {
	header := http.Header{}
	header.Set("Sec-WebSocket-Protocol", subprotocol)
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	dialer := websocket.Dialer{Subprotocols: []string{subprotocol}}
	ws, _, err := dialer.Dial(c.wsURL(), header)
	if err != nil {
		return fmt.Errorf("conn: dial: %w", err)
	}
	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.mu.Unlock()
	return nil
}

// readLoop is the connection's read half: one goroutine, owns the socket
// for reading, decodes frames and forwards decoded events to the façade.
// A decode failure or unknown tag is logged and the frame is dropped; only
// a socket-level read error tears the connection down.
func (c *Connection) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.handleDisconnect(err)
			return nil
		}
		payload, err := protocol.UnwrapEnvelope(data)
		if err != nil {
			log.Printf("conn: dropping frame: %v", err)
			continue
		}
		msg, err := protocol.DecodeServerMessage(payload)
		if err != nil {
			log.Printf("conn: dropping frame: %v", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Connection) dispatch(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case protocol.InitialConnection:
		c.mu.Lock()
		c.identity = m.Identity
		c.connID = m.ConnectionID
		if m.Token != "" {
			c.token = m.Token
		}
		c.mu.Unlock()
		c.emit(Event{Connected: &m})
	case protocol.SubscribeApplied:
		c.clearPending(m.RequestID)
		c.emit(Event{SubscribeApplied: &m})
	case protocol.UnsubscribeApplied:
		c.clearPending(m.RequestID)
		c.emit(Event{UnsubscribeApplied: &m})
	case protocol.SubscriptionError:
		if m.RequestID != nil {
			c.clearPending(*m.RequestID)
		}
		c.emit(Event{SubscriptionError: &m})
	case protocol.TransactionUpdate:
		c.emit(Event{Transaction: &m})
	case protocol.OneOffQueryResult:
		c.clearPending(m.RequestID)
		c.emit(Event{OneOffQueryResult: &m})
	case protocol.ReducerResult:
		c.clearPending(m.RequestID)
		c.emit(Event{ReducerResult: &m})
	case protocol.ProcedureResult:
		c.clearPending(m.RequestID)
		c.emit(Event{ProcedureResult: &m})
	}
}

func (c *Connection) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Printf("conn: event channel full, dropping oldest is not permitted; blocking")
		c.events <- ev
	}
}

func (c *Connection) clearPending(reqID uint32) {
	c.mu.Lock()
	delete(c.pending, reqID)
	c.mu.Unlock()
}

func (c *Connection) handleDisconnect(err error) {
	c.mu.Lock()
	c.connected = false
	// Every pending descriptor is dropped on disconnect.
	c.pending = make(map[uint32]RequestDescriptor)
	c.mu.Unlock()
	c.emit(Event{Disconnected: &DisconnectedEvent{Reason: err, Attempt: 0}})
}

// nextRequestID allocates and registers a new correlatable request ID.
func (c *Connection) nextRequestID(desc RequestDescriptor) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextReqID
	c.nextReqID++
	c.pending[id] = desc
	return id
}

// nextQuerySetID allocates a new query-set ID for an outgoing Subscribe.
func (c *Connection) nextQuerySetID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextQSID
	c.nextQSID++
	return id
}

// send writes one already-enveloped frame to the socket. Frames are never
// buffered beyond the OS socket buffer: a caller issuing requests faster
// than the socket can drain blocks here.
func (c *Connection) send(payload []byte) error {
	c.mu.Lock()
	ws := c.ws
	tag := c.cfg.Compression.tag()
	c.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("conn: not connected")
	}
	frame, err := protocol.WrapEnvelope(tag, payload)
	if err != nil {
		// Compression isn't negotiable outbound beyond none/gzip; fall
		// back to uncompressed rather than fail the call.
		frame, err = protocol.WrapEnvelope(protocol.CompressionNone, payload)
		if err != nil {
			return err
		}
	}
	return ws.WriteMessage(websocket.BinaryMessage, frame)
}

// Subscribe mints a query_set_id, registers the descriptor, and sends a
// Subscribe message. Returns the minted query_set_id.
func (c *Connection) Subscribe(queries []string) (uint32, error) {
	qsID := c.nextQuerySetID()
	reqID := c.nextRequestID(RequestDescriptor{Kind: RequestSubscribe, QuerySetID: qsID, Queries: queries})
	return qsID, c.send(protocol.EncodeSubscribe(protocol.Subscribe{RequestID: reqID, QuerySetID: qsID, Queries: queries}))
}

// Unsubscribe sends an Unsubscribe message for an existing query set.
func (c *Connection) Unsubscribe(qsID uint32, sendDroppedRows bool) error {
	flags := uint8(protocol.UnsubscribeDefault)
	if sendDroppedRows {
		flags = protocol.UnsubscribeSendDroppedRows
	}
	reqID := c.nextRequestID(RequestDescriptor{Kind: RequestUnsubscribe, QuerySetID: qsID})
	return c.send(protocol.EncodeUnsubscribe(protocol.Unsubscribe{RequestID: reqID, QuerySetID: qsID, Flags: flags}))
}

// OneOffQuery sends a OneOffQuery message.
func (c *Connection) OneOffQuery(query string) error {
	reqID := c.nextRequestID(RequestDescriptor{Kind: RequestOneOffQuery})
	return c.send(protocol.EncodeOneOffQuery(protocol.OneOffQuery{RequestID: reqID, Query: query}))
}

// CallReducer sends a CallReducer message with pre-encoded BSATN args.
func (c *Connection) CallReducer(name string, args []byte) error {
	reqID := c.nextRequestID(RequestDescriptor{Kind: RequestCallReducer})
	return c.send(protocol.EncodeCallReducer(protocol.CallReducer{RequestID: reqID, Reducer: name, Args: args}))
}

// CallProcedure sends a CallProcedure message with pre-encoded BSATN args.
func (c *Connection) CallProcedure(name string, args []byte) error {
	reqID := c.nextRequestID(RequestDescriptor{Kind: RequestCallProcedure})
	return c.send(protocol.EncodeCallProcedure(protocol.CallProcedure{RequestID: reqID, Procedure: name, Args: args}))
}

// Connected reports whether the socket is currently open.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Identity returns the negotiated identity, valid once Connected() and the
// InitialConnection event has been observed.
func (c *Connection) Identity() [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Token returns the auth token currently in effect: the one negotiated at
// dial time, updated in place if InitialConnection carried a fresh one.
func (c *Connection) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Stop closes the socket, discards every pending request descriptor, and
// waits for the read loop to exit. Callers waiting on a pending response
// receive no notification that it was dropped.
func (c *Connection) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	ws := c.ws
	c.connected = false
	for id := range c.pending {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}
	if c.group != nil {
		return c.group.Wait()
	}
	return nil
}
