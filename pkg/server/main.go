package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/downfa11-org/logship/pkg/disk"
	"github.com/downfa11-org/logship/pkg/metrics"
	"github.com/downfa11-org/logship/pkg/offset"
	"github.com/downfa11-org/logship/pkg/protocol"
	"github.com/downfa11-org/logship/pkg/types"
	"github.com/downfa11-org/logship/util"
)

// Options configures a replication server.
type Options struct {
	Password          string
	NodeID            uint32 // source id for local appends
	MaxPushBytes      int64
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	CleanupInterval   time.Duration
	Retention         time.Duration
}

func (o *Options) setDefaults() {
	if o.MaxPushBytes <= 0 {
		o.MaxPushBytes = 512 * 1024
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = 65 * time.Second
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = time.Hour
	}
	if o.Retention <= 0 {
		o.Retention = disk.DefaultRetention
	}
}

// Server serves pulls from a LogStore to replicas.
//
// One lock serializes message handling, the liveness sweep and retention, so
// the protocol state behaves as a single event loop.
type Server struct {
	opts    Options
	store   *disk.LogStore
	handles *disk.HandleCache
	nodes   *offset.NodeRegistry

	mu       sync.Mutex
	sessions map[string]*Session

	ln net.Listener
	wg sync.WaitGroup

	now func() time.Time
}

// New builds a server over an opened store and loads the node registry.
func New(store *disk.LogStore, opts Options) (*Server, error) {
	opts.setDefaults()

	nodes := offset.NewNodeRegistry(store.Dir)
	if err := nodes.Open(); err != nil {
		return nil, err
	}
	return &Server{
		opts:     opts,
		store:    store,
		handles:  disk.NewHandleCache(store.Dir, store.Prefix),
		nodes:    nodes,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}, nil
}

// Listen binds the replication port. Serve must be called afterwards.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	util.Info("replication server listening on %s", ln.Addr())
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts replica connections until ctx is done, then closes every
// session and stops the timers.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("server is not listening")
	}

	s.mu.Lock()
	if err := s.store.EnsureRotation(); err != nil {
		util.Error("startup rotation check failed: %v", err)
	}
	s.mu.Unlock()

	s.wg.Add(2)
	go s.loop(ctx, s.opts.HeartbeatInterval, s.sweep)
	go s.loop(ctx, s.opts.CleanupInterval, s.retain)

	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		raw, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			util.Warn("accept error: %v", err)
			continue
		}
		s.wg.Add(1)
		go s.serveConn(raw)
	}

	s.shutdown()
	s.wg.Wait()
	return nil
}

// Run is Listen followed by Serve.
func (s *Server) Run(ctx context.Context, addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Append writes a record produced by this process into the log.
func (s *Server) Append(payload []byte) (types.Position, error) {
	return s.store.Append(s.opts.NodeID, payload)
}

func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) serveConn(raw net.Conn) {
	defer s.wg.Done()

	conn := protocol.NewConn(raw)
	s.mu.Lock()
	sess := s.newSession(conn, conn.RemoteAddr())
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()
	util.Debug("session %s: connected from %s", sess.ID, sess.Remote)

	defer s.closeSession(sess)

	for {
		msg, err := conn.Receive()
		if err != nil {
			if errors.Is(err, protocol.ErrBadMessage) {
				util.Debug("session %s: %v", sess.ID, err)
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				util.Debug("session %s: read error: %v", sess.ID, err)
			}
			return
		}

		s.mu.Lock()
		replies, closeAfter := sess.Handle(msg)
		s.mu.Unlock()

		for _, r := range replies {
			if err := conn.Send(r); err != nil {
				util.Debug("session %s: write error: %v", sess.ID, err)
				return
			}
		}
		if closeAfter {
			return
		}
	}
}

func (s *Server) closeSession(sess *Session) {
	s.mu.Lock()
	if _, ok := s.sessions[sess.ID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sess.ID)
	sess.close()
	s.mu.Unlock()

	if sess.conn != nil {
		sess.conn.Close()
	}
	metrics.ActiveSessions.Dec()
	if err := s.nodes.Flush(); err != nil {
		util.Error("flush node registry: %v", err)
	}
	util.Debug("session %s: closed", sess.ID)
}

func (s *Server) loop(ctx context.Context, every time.Duration, fn func()) {
	defer s.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// sweep closes connections that have been silent longer than the heartbeat timeout.
func (s *Server) sweep() {
	s.mu.Lock()
	now := s.now()
	var idle []*Session
	for _, sess := range s.sessions {
		if now.Sub(sess.lastActivity) > s.opts.HeartbeatTimeout {
			util.Warn("session %s: no message from node %d for %s, closing", sess.ID, sess.nodeID, s.opts.HeartbeatTimeout)
			idle = append(idle, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		metrics.SessionsExpired.Inc()
		s.closeSession(sess)
	}
	if err := s.nodes.Flush(); err != nil {
		util.Error("flush node registry: %v", err)
	}
}

// retain checks rotation and then removes aged finalized segments.
func (s *Server) retain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.EnsureRotation(); err != nil {
		util.Error("retention: rotation check failed: %v", err)
	}
	deleted := s.store.Cleanup(s.opts.Retention, s.handles)
	if len(deleted) > 0 {
		util.Info("retention: removed %d segments", len(deleted))
	}
}

func (s *Server) shutdown() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		s.closeSession(sess)
	}
	s.handles.CloseAll()
	if err := s.nodes.Flush(); err != nil {
		util.Error("flush node registry: %v", err)
	}
	util.Info("replication server stopped")
}
