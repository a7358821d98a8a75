// Package client is the façade: it orchestrates schema fetch, connection,
// and cache, and fans decoded events out to an Observer. It is the sole
// owner of cache state; nothing outside this package writes to it.
package client

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	clienterrors "github.com/moduledb/moduledb-go/internal/errors"

	"github.com/moduledb/moduledb-go/internal/cache"
	"github.com/moduledb/moduledb-go/internal/conn"
	"github.com/moduledb/moduledb-go/internal/diag"
	"github.com/moduledb/moduledb-go/internal/observability"
	"github.com/moduledb/moduledb-go/internal/protocol"
	"github.com/moduledb/moduledb-go/internal/schemafetch"
	"github.com/moduledb/moduledb-go/internal/server"
	"github.com/moduledb/moduledb-go/internal/tokenstore"
	"github.com/moduledb/moduledb-go/pkg/schema"
)

// Config is the client's start-up configuration: host, database name,
// optional auth token, initial subscriptions, wire compression, and
// reconnect bounds.
type Config struct {
	Host          string
	Database      string
	Token         string
	Subscriptions []string
	Compression   conn.Compression
	TLS           bool
	Reconnect     ReconnectConfig

	// TokenStore, if set, persists the auth token and per-table bloom
	// filters across restarts. A cold start with no store simply warms
	// its cache from the wire, as usual.
	TokenStore *tokenstore.Store

	// Diag, if set, receives best-effort diagnostic events (reconnects,
	// bloom filter persistence, token refresh) alongside the ordered
	// Observer dispatch. A nil Diag disables publishing entirely.
	Diag *diag.Bus
}

// ReconnectConfig bounds the connection actor's backoff.
type ReconnectConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Client is the top-level handle returned by Start.
type Client struct {
	cfg      Config
	observer Observer
	schema   *schema.Schema
	cache    *cache.Cache
	conn     *conn.Connection
	shutdown *server.ShutdownManager

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	querySets map[uint32][]string // qsID -> subscribed queries, for logging/introspection
	usage     *observability.UsageStats
}

// New constructs a Client. Call Start to fetch the schema and open the
// connection.
func New(cfg Config, observer Observer) *Client {
	if observer == nil {
		observer = BaseObserver{}
	}
	return &Client{
		cfg:       cfg,
		observer:  observer,
		querySets: make(map[uint32][]string),
		usage:     observability.NewUsageStats(1 * time.Hour),
	}
}

// UsageStats returns the client's query/reducer call-frequency tracker.
// Callers may poll TopQueries/TopReducers for lightweight introspection,
// or call Prune periodically to bound its memory.
func (c *Client) UsageStats() *observability.UsageStats {
	return c.usage
}

// Start fetches the schema over HTTP, opens the connection, and — once
// InitialConnection arrives — subscribes to cfg.Subscriptions.
func (c *Client) Start(ctx context.Context, src schemafetch.SchemaSource) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("client: already running")
	}
	c.running = true
	c.mu.Unlock()

	doc, err := src.FetchSchema(ctx)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return clienterrors.Wrap(clienterrors.ErrCategorySchema, clienterrors.CodeSchemaFetchFailed, "fetching schema", err)
	}
	sch, err := schema.Parse(doc)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return clienterrors.Wrap(clienterrors.ErrCategorySchema, clienterrors.CodeSchemaFetchFailed, "parsing schema", err)
	}
	c.schema = sch
	c.cache = cache.New(sch)
	c.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())

	token := c.cfg.Token
	if c.cfg.TokenStore != nil {
		if token == "" {
			if stored, ok, err := c.cfg.TokenStore.LoadToken(ctx, c.cfg.Host, c.cfg.Database); err == nil && ok {
				token = stored
			}
		}
		c.warmCacheFilters(ctx)
		if changed, version, err := tokenstore.NewSchemaCacheManager(c.cfg.TokenStore).Reconcile(ctx, c.cfg.Host, c.cfg.Database, doc); err != nil {
			log.Printf("client: schema cache reconcile failed: %v", err)
		} else if changed {
			c.publishDiag(diag.Event{Kind: diag.SchemaVersionChanged, Detail: fmt.Sprintf("version %d", version)})
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.conn = conn.New(conn.Config{
		Host:        c.cfg.Host,
		Database:    c.cfg.Database,
		Token:       token,
		Compression: c.cfg.Compression,
		TLS:         c.cfg.TLS,
		MaxAttempts: c.cfg.Reconnect.MaxAttempts,
		BaseBackoff: c.cfg.Reconnect.BaseBackoff,
		MaxBackoff:  c.cfg.Reconnect.MaxBackoff,
	})

	if err := c.conn.Start(ctx); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return clienterrors.Wrap(clienterrors.ErrCategoryTransport, clienterrors.CodeConnectionFailed, "opening connection", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.eventLoop(ctx)
	}()

	return nil
}

// warmCacheFilters loads any bloom filters persisted from a prior run into
// the freshly built cache, so the first round of Find calls after a
// restart isn't a guaranteed map miss for every key.
func (c *Client) warmCacheFilters(ctx context.Context) {
	for name := range c.schema.Tables {
		rec, ok, err := c.cfg.TokenStore.LoadBloomFilter(ctx, c.cfg.Host, c.cfg.Database, name)
		if err != nil || !ok {
			continue
		}
		if err := c.cache.ImportFilter(name, rec.CompressedData); err != nil {
			log.Printf("client: discarding stale bloom filter for table %q: %v", name, err)
		}
	}
}

// persistCacheFilters snapshots every table's bloom filter to TokenStore,
// best-effort, so the next Start can warm from it.
func (c *Client) persistCacheFilters(ctx context.Context) {
	for name := range c.schema.Tables {
		snap, ok, err := c.cache.ExportFilter(name)
		if err != nil || !ok {
			continue
		}
		if err := c.cfg.TokenStore.SaveBloomFilter(ctx, c.cfg.Host, c.cfg.Database, name, snap.Data, snap.NumBits, snap.NumHashes, snap.Count); err != nil {
			log.Printf("client: failed to persist bloom filter for table %q: %v", name, err)
			continue
		}
		c.publishDiag(diag.Event{Kind: diag.BloomFilterPersisted, Table: name})
	}
}

// publishDiag is a no-op when cfg.Diag is unset, so every diagnostic call
// site can fire unconditionally.
func (c *Client) publishDiag(ev diag.Event) {
	if c.cfg.Diag != nil {
		c.cfg.Diag.Publish(ev)
	}
}

// eventLoop is the façade actor: the sole reader of conn.Events(), fanning
// decoded server messages out to the Observer in the order they arrive.
func (c *Client) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.conn.Events():
			if !ok {
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Client) handleEvent(ev conn.Event) {
	switch {
	case ev.Connected != nil:
		if c.cfg.TokenStore != nil && c.conn.Token() != "" {
			if err := c.cfg.TokenStore.SaveToken(context.Background(), c.cfg.Host, c.cfg.Database, c.conn.Token()); err != nil {
				log.Printf("client: failed to persist auth token: %v", err)
			} else {
				c.publishDiag(diag.Event{Kind: diag.TokenPersisted})
			}
		}
		c.publishDiag(diag.Event{Kind: diag.ConnectionEstablished})
		c.observer.OnConnect(ev.Connected.Identity, ev.Connected.ConnectionID)
		for _, q := range c.cfg.Subscriptions {
			if _, err := c.conn.Subscribe([]string{q}); err != nil {
				log.Printf("client: subscribe %q failed: %v", q, err)
				continue
			}
			c.usage.RecordQuery(q)
		}

	case ev.SubscribeApplied != nil:
		sa := ev.SubscribeApplied
		for _, tr := range sa.Rows.Tables {
			rows := c.decodeRows(tr.Table, tr.Rows)
			c.cache.ApplySnapshot(tr.Table, rows)
			c.publishDiag(diag.Event{Kind: diag.SubscriptionApplied, Table: tr.Table})
			c.observer.OnSubscribeApplied(tr.Table, rows)
		}

	case ev.UnsubscribeApplied != nil:
		ua := ev.UnsubscribeApplied
		var rows []schema.Row
		if ua.Rows != nil {
			for _, tr := range ua.Rows.Tables {
				rows = append(rows, c.decodeRows(tr.Table, tr.Rows)...)
			}
		}
		c.observer.OnUnsubscribeApplied(ua.QuerySetID, rows)

	case ev.SubscriptionError != nil:
		se := ev.SubscriptionError
		c.publishDiag(diag.Event{Kind: diag.SubscriptionErrored, Detail: se.Error})
		c.observer.OnSubscriptionError(se.QuerySetID, se.RequestID, se.Error)

	case ev.Transaction != nil:
		c.applyTransaction(*ev.Transaction)

	case ev.OneOffQueryResult != nil:
		c.observer.OnQueryResult(*ev.OneOffQueryResult)

	case ev.ReducerResult != nil:
		rr := *ev.ReducerResult
		if rr.Outcome.Kind == protocol.ReducerOutcomeOk && rr.Outcome.Tx != nil {
			c.applyTransaction(*rr.Outcome.Tx)
		}
		c.observer.OnReducerResult(rr)

	case ev.ProcedureResult != nil:
		log.Printf("client: procedure result request_id=%d", ev.ProcedureResult.RequestID)

	case ev.Disconnected != nil:
		reason := ""
		if ev.Disconnected.Reason != nil {
			reason = ev.Disconnected.Reason.Error()
		}
		if ev.Disconnected.Attempt > 0 {
			c.publishDiag(diag.Event{Kind: diag.ReconnectAttempt, Attempt: ev.Disconnected.Attempt, Detail: reason})
		} else {
			c.publishDiag(diag.Event{Kind: diag.ConnectionLost, Detail: reason})
		}
		c.observer.OnDisconnect(ev.Disconnected.Reason, ev.Disconnected.Attempt)

	case ev.ConnectionFailed:
		c.publishDiag(diag.Event{Kind: diag.ReconnectGaveUp})
		c.observer.OnConnectionFailed()
	}
}

// applyTransaction feeds the cache for every table update before
// dispatching any event to the observer, so a cache read from within a
// callback always reflects the post-transaction state.
func (c *Client) applyTransaction(tx protocol.TransactionUpdate) {
	for _, qs := range tx.QuerySets {
		var changes TransactionChanges
		changes.QuerySetID = qs.QuerySetID

		type pending struct {
			table   string
			deletes []schema.Row
			inserts []schema.Row
			pkIdx   []int
		}
		var work []pending

		for _, tu := range qs.Tables {
			def, ok := c.schema.Tables[tu.TableName]
			var pkIdx []int
			if ok {
				pkIdx = def.PrimaryKey
			}
			if len(pkIdx) == 0 {
				pkIdx = []int{0}
			}
			var deletes, inserts []schema.Row
			for _, r := range tu.Rows {
				if r.Kind != protocol.TableUpdatePersistent {
					continue // Event rows are ignored by the cache.
				}
				deletes = append(deletes, c.decodeRows(tu.TableName, r.Deletes)...)
				inserts = append(inserts, c.decodeRows(tu.TableName, r.Inserts)...)
			}
			c.cache.ApplyDelta(tu.TableName, deletes, inserts)
			changes.Tables = append(changes.Tables, TableChange{Table: tu.TableName, Deletes: deletes, Inserts: inserts})
			work = append(work, pending{table: tu.TableName, deletes: deletes, inserts: inserts, pkIdx: pkIdx})
		}

		suppress := c.observer.OnTransaction(changes)
		if suppress {
			continue
		}
		for _, w := range work {
			for _, e := range Reconcile(w.deletes, w.inserts, w.pkIdx) {
				switch e.Kind {
				case reconcileDelete:
					c.observer.OnDelete(w.table, e.Before)
				case reconcileUpdate:
					c.observer.OnUpdate(w.table, e.Before, e.After)
				case reconcileInsert:
					c.observer.OnInsert(w.table, e.After)
				}
			}
		}
	}
}

func (c *Client) decodeRows(table string, rl protocol.BsatnRowList) []schema.Row {
	def, ok := c.schema.Tables[table]
	if !ok {
		log.Printf("client: rows for unknown table %q dropped", table)
		return nil
	}
	hint := schema.RowListSizeHint{}
	switch rl.HintKind {
	case protocol.SizeHintFixed:
		hint.Kind = schema.SizeHintFixed
		hint.Stride = rl.Stride
	case protocol.SizeHintOffsets:
		hint.Kind = schema.SizeHintOffsets
		hint.Offsets = rl.Offsets
	}
	rows, err := schema.DecodeRowList(hint, rl.RowsData, def.Columns)
	if err != nil {
		log.Printf("client: row-list for table %q dropped: %v", table, err)
		return nil
	}
	return rows
}

// CallReducer looks up name in the schema, encodes args as the reducer's
// argument product, and sends CallReducer. Returns unknown_reducer without
// touching the socket if name isn't a known reducer.
func (c *Client) CallReducer(name string, args map[string]interface{}) error {
	reducer, ok := c.schema.Reducer(name)
	if !ok {
		return clienterrors.New(clienterrors.ErrCategorySchema, clienterrors.CodeUnknownReducer, fmt.Sprintf("unknown_reducer(%q)", name))
	}
	encoded, err := schema.EncodeReducerArgs(args, reducer.Params)
	if err != nil {
		return clienterrors.Wrap(clienterrors.ErrCategorySchema, clienterrors.CodeEncodingFailed, "encoding reducer args", err)
	}
	c.usage.RecordReducer(name)
	return c.conn.CallReducer(name, encoded)
}

// CallReducerRaw sends pre-encoded BSATN args directly, bypassing schema
// lookup and encoding.
func (c *Client) CallReducerRaw(name string, preencoded []byte) error {
	return c.conn.CallReducer(name, preencoded)
}

// Subscribe mints a query_set_id and subscribes to queries.
func (c *Client) Subscribe(queries []string) (uint32, error) {
	qsID, err := c.conn.Subscribe(queries)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.querySets[qsID] = queries
	c.mu.Unlock()
	for _, q := range queries {
		c.usage.RecordQuery(q)
	}
	return qsID, nil
}

// Unsubscribe tears down a previously subscribed query set.
func (c *Client) Unsubscribe(qsID uint32, sendDroppedRows bool) error {
	return c.conn.Unsubscribe(qsID, sendDroppedRows)
}

// OneOffQuery issues a one-shot query; the result arrives via
// Observer.OnQueryResult.
func (c *Client) OneOffQuery(text string) error {
	c.usage.RecordQuery(text)
	return c.conn.OneOffQuery(text)
}

// GetAll, Find, and Count are point-in-time cache reads.
func (c *Client) GetAll(table string) []schema.Row { return c.cache.GetAll(table) }

func (c *Client) Find(table string, pkValues ...schema.Value) (schema.Row, bool) {
	return c.cache.Find(table, pkValues...)
}

func (c *Client) Count(table string) int { return c.cache.Count(table) }

// Stop cancels the event loop, waits for it to exit, then closes the
// connection.
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if c.cfg.TokenStore != nil {
		c.persistCacheFilters(context.Background())
	}

	if c.conn != nil {
		return c.conn.Stop()
	}
	return nil
}
