// Package transport implements TcpTransport, the per-connection orchestrator
// fusing the framer, chunker, and secure-channel layers into the OPC UA TCP
// handshake, chunk-processing, and subscription-publish lifecycle (IEC
// 62541-6 §7). Four cooperating goroutines, read loop, write loop,
// hello-timeout timer, subscription pump, are coordinated with
// golang.org/x/sync/errgroup instead of ad hoc WaitGroup/done-channel
// bookkeeping.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	opcerrors "github.com/balsa02/opcua/internal/errors"
	"github.com/balsa02/opcua/internal/logger"
	"github.com/balsa02/opcua/internal/opcua/audit"
	"github.com/balsa02/opcua/internal/opcua/chunker"
	"github.com/balsa02/opcua/internal/opcua/securechannel"
	"github.com/balsa02/opcua/internal/opcua/session"
	"github.com/balsa02/opcua/internal/opcua/tcpmsg"
	"golang.org/x/sync/errgroup"
)

// Capability is the minimal surface a connection orchestrator exposes to
// callers outside this package (the server's accept loop, metrics, admin
// tooling), decoupled from the TCP-specific implementation so a future
// transport binding (HTTPS/WSS) could satisfy the same seam.
type Capability interface {
	State() string
	Session() *session.Session
	ClientAddress() string
	Finish(code opcerrors.StatusCode)
	IsSessionTerminated() bool
}

type jobKind int

const (
	jobAck jobKind = iota
	jobChunked
)

// writeJob is one item on the outbound queue; both the read loop (request
// responses) and the subscription pump (publish responses) produce these.
type writeJob struct {
	kind        jobKind
	ack         tcpmsg.Ack
	messageType tcpmsg.MsgType
	requestID   uint32
	nodeID      chunker.NodeID
	payload     []byte
}

// TcpTransport is one accepted connection's orchestrator. It is created by
// the server package per net.Listener.Accept() and driven by Run until the
// connection finishes.
type TcpTransport struct {
	id   string
	conn net.Conn
	opts Options
	log  *slog.Logger

	reader *tcpmsg.Reader
	writer *tcpmsg.Writer

	scService     *securechannel.Service
	secureChannel *securechannel.None
	channelID     uint32

	sess *session.Session

	outbound chan *writeJob

	startedAt     time.Time
	helloReceived atomic.Bool

	finishOnce sync.Once
	finished   atomic.Bool
	finishCode atomic.Uint32

	expectedSeq   uint32
	pendingChunks map[uint32][]*chunker.Chunk

	metrics *Metrics
}

var _ Capability = (*TcpTransport)(nil)

// New builds a TcpTransport for an already-accepted connection. scService is
// shared across connections (it only allocates monotonic ids); everything
// else is connection-private.
func New(conn net.Conn, opts Options, scService *securechannel.Service, metrics *Metrics) *TcpTransport {
	opts.ApplyDefaults()
	id := fmt.Sprintf("t-%p", conn)
	return &TcpTransport{
		id:            id,
		conn:          conn,
		opts:          opts,
		log:           logger.WithConn(logger.Logger(), id, conn.RemoteAddr().String()),
		reader:        tcpmsg.NewReader(int(opts.ReceiveBufferSize), opts.MaxMessageSize),
		writer:        tcpmsg.NewWriter(),
		scService:     scService,
		outbound:      make(chan *writeJob, 256),
		startedAt:     time.Now(),
		expectedSeq:   1, // OPC UA chunk sequence numbers start at 1; 0 is reserved
		pendingChunks: make(map[uint32][]*chunker.Chunk),
		metrics:       metrics,
	}
}

// State returns the human-readable current state. Safe to call from any
// goroutine: it only ever reports "Finished" or "Active" since the detailed
// state machine is read-loop-private.
func (t *TcpTransport) State() string {
	if t.IsFinished() {
		return stateFinished.String()
	}
	return "Active"
}

// Session returns the connection's session bridge, or nil before HELLO.
func (t *TcpTransport) Session() *session.Session { return t.sess }

// ClientAddress returns the remote peer address.
func (t *TcpTransport) ClientAddress() string { return t.conn.RemoteAddr().String() }

// IsSessionTerminated reports whether the session has been marked terminated.
func (t *TcpTransport) IsSessionTerminated() bool {
	return t.sess != nil && t.sess.Terminated()
}

// IsFinished reports whether the transport has reached its terminal state.
func (t *TcpTransport) IsFinished() bool { return t.finished.Load() }

// FinishCode returns the status code the transport finished with, or Good if
// still running.
func (t *TcpTransport) FinishCode() opcerrors.StatusCode {
	return opcerrors.StatusCode(t.finishCode.Load())
}

// Finish idempotently marks the transport finished and closes the socket,
// unblocking any goroutine parked in a blocking read or write. Safe to call
// from any of the four tasks.
func (t *TcpTransport) Finish(code opcerrors.StatusCode) {
	t.finishOnce.Do(func() {
		t.finishCode.Store(uint32(code))
		t.finished.Store(true)
		if t.sess != nil {
			t.sess.Terminate()
		}
		t.log.Info("transport finished", "code", code.String())
		_ = t.conn.Close()
	})
}

// emit reports an audit event if an audit.Manager is configured; a no-op otherwise.
func (t *TcpTransport) emit(eventType audit.EventType, build func(*audit.Event)) {
	if t.opts.Audit == nil {
		return
	}
	e := audit.NewEvent(eventType, time.Now()).WithConnID(t.id).WithChannelID(t.channelID)
	if build != nil {
		build(e)
	}
	t.opts.Audit.Emit(context.Background(), *e)
}

// Run drives the four cooperating tasks until the connection finishes or ctx
// is cancelled, then waits for all of them to exit.
func (t *TcpTransport) Run(ctx context.Context) error {
	t.metrics.connAccepted()
	t.emit(audit.EventConnectionAccept, nil)
	defer t.emit(audit.EventConnectionClose, func(e *audit.Event) { e.WithData("code", t.FinishCode().String()) })
	defer t.metrics.connClosed()
	defer t.reader.Close()
	defer t.Finish(opcerrors.BadConnectionClosed)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		// The read loop only returns once the transport is finished, so its
		// exit releases the tasks that wait on gctx.
		defer cancel()
		return t.readLoop()
	})
	g.Go(func() error { return t.writeLoop(gctx) })
	g.Go(func() error { return t.helloTimeoutLoop(gctx) })
	g.Go(func() error { return t.subscriptionPump(gctx) })
	g.Go(func() error {
		// Server abort / graceful shutdown: the read loop blocks on a raw
		// socket Read with no ctx awareness, so cancellation must close the
		// socket to unblock it, exactly as a peer disconnect would.
		<-gctx.Done()
		t.Finish(opcerrors.BadCommunicationError)
		return nil
	})

	err := g.Wait()
	if t.FinishCode() != opcerrors.Good && t.FinishCode() != opcerrors.BadConnectionClosed {
		return opcerrors.NewTransportError("run", t.FinishCode(), err)
	}
	return nil
}

// readLoop owns TransportState for the lifetime of the connection: no lock
// is taken on it, since only this goroutine ever reads or mutates it.
func (t *TcpTransport) readLoop() error {
	st := stateWaitingHello
	scratch := make([]byte, t.opts.ReceiveBufferSize)

	for {
		if t.IsFinished() {
			return nil
		}
		n, err := t.conn.Read(scratch)
		if err != nil {
			if t.IsFinished() {
				return nil
			}
			t.Finish(opcerrors.BadCommunicationError)
			return fmt.Errorf("readLoop: %w", err)
		}
		t.metrics.observeBytesIn(n)

		frames, err := t.reader.StoreBytes(scratch[:n])
		if err != nil {
			t.finishWithError(err)
			return err
		}

		for _, f := range frames {
			if err := t.dispatch(&st, f); err != nil {
				t.finishWithError(err)
				return err
			}
			if t.sess != nil && t.sess.Terminated() {
				t.Finish(opcerrors.BadConnectionClosed)
				return nil
			}
			if t.IsFinished() {
				return nil
			}
		}
	}
}

// dispatch applies one fully-reassembled frame according to the current
// TransportState (IEC 62541-6 §7.1's connection establishment state table).
func (t *TcpTransport) dispatch(st *state, f tcpmsg.Frame) error {
	switch *st {
	case stateWaitingHello:
		if f.Header.Type != tcpmsg.TypeHello {
			return opcerrors.NewTransportError("dispatch", opcerrors.BadCommunicationError,
				fmt.Errorf("expected HELLO, got %s", f.Header.Type))
		}
		if err := t.processHello(f.Body); err != nil {
			return err
		}
		*st = stateProcessMessages
		return nil
	case stateProcessMessages:
		if f.Header.Type == tcpmsg.TypeHello {
			return opcerrors.NewTransportError("dispatch", opcerrors.BadCommunicationError,
				fmt.Errorf("unexpected second HELLO"))
		}
		if !f.Header.Type.IsChunked() {
			return opcerrors.NewTransportError("dispatch", opcerrors.BadCommunicationError,
				fmt.Errorf("unexpected message type %s", f.Header.Type))
		}
		return t.processChunk(f.Header.Type, f.Header.Final, f.Body)
	default:
		return nil
	}
}

// processHello validates the HELLO request, assigns the channel id and
// secure channel, and enqueues ACK (IEC 62541-6 §7.1.2).
func (t *TcpTransport) processHello(body []byte) error {
	hello, err := tcpmsg.DecodeHello(body)
	if err != nil {
		return opcerrors.NewTransportError("processHello", opcerrors.BadDecodingError, err)
	}
	if err := t.opts.validateHello(hello); err != nil {
		return err
	}

	t.channelID = t.scService.NextChannelID()
	t.secureChannel = securechannel.NewNone(t.channelID)
	t.sess = session.New(t.channelID)
	t.helloReceived.Store(true)

	ack := tcpmsg.Ack{
		ProtocolVersion:   ServerProtocolVersion,
		ReceiveBufferSize: t.opts.ReceiveBufferSize,
		SendBufferSize:    t.opts.SendBufferSize,
		MaxMessageSize:    t.opts.MaxMessageSize,
		MaxChunkCount:     t.opts.MaxChunkCount,
	}
	select {
	case t.outbound <- &writeJob{kind: jobAck, ack: ack}:
	default:
		raw := tcpmsg.WriteAck(ack)
		if _, werr := t.conn.Write(raw); werr != nil {
			return opcerrors.NewTransportError("processHello", opcerrors.BadCommunicationError, werr)
		}
	}
	t.log.Info("hello accepted", "endpoint_url", hello.EndpointURL, "channel_id", t.channelID)
	return nil
}

// processChunk reassembles a chunk group, buffering intermediate chunks per
// request id so that a group (intermediates plus the Final chunk) never
// exceeds MaxChunkCount and an unbounded intermediate-chunk run cannot
// exhaust memory.
func (t *TcpTransport) processChunk(msgType tcpmsg.MsgType, final tcpmsg.Finality, raw []byte) error {
	if final == tcpmsg.FinalError {
		return nil // client aborted the chunk sequence; nothing to assemble
	}

	chunk, err := t.secureChannel.VerifyAndRemoveSecurity(msgType, final, raw)
	if err != nil {
		return err
	}

	reqID := chunk.Sequence.RequestID
	if final == tcpmsg.Intermediate {
		group := t.pendingChunks[reqID]
		if uint32(len(group)+2) > t.opts.MaxChunkCount { // this chunk plus the Final still to come
			return opcerrors.NewTransportError("processChunk", opcerrors.BadTcpMessageTooLarge,
				fmt.Errorf("request %d exceeds max_chunk_count %d", reqID, t.opts.MaxChunkCount))
		}
		t.pendingChunks[reqID] = append(group, chunk)
		return nil
	}

	group := append(t.pendingChunks[reqID], chunk)
	delete(t.pendingChunks, reqID)

	next, err := chunker.ValidateChunks(t.expectedSeq, t.secureChannel, group)
	if err != nil {
		if opcerrors.CodeOf(err) == opcerrors.BadSequenceNumberInvalid {
			t.emit(audit.EventSequenceViolation, func(e *audit.Event) { e.WithData("expected", t.expectedSeq) })
		}
		return err
	}
	t.expectedSeq = next
	t.metrics.chunkProcessed()

	svcReq, err := chunker.Decode(group)
	if err != nil {
		return err
	}

	switch msgType {
	case tcpmsg.TypeOpen:
		return t.handleOpen(reqID, svcReq)
	case tcpmsg.TypeClose:
		return t.handleClose(reqID)
	case tcpmsg.TypeMessage:
		return t.handleMessage(reqID, svcReq)
	default:
		return opcerrors.NewTransportError("processChunk", opcerrors.BadTcpMessageTypeInvalid,
			fmt.Errorf("unexpected chunked message type %s", msgType))
	}
}

func (t *TcpTransport) handleOpen(requestID uint32, svcReq *chunker.ServiceRequest) error {
	openReq, err := securechannel.DecodeOpenRequest(svcReq.Body)
	if err != nil {
		return err
	}
	serverNonce := make([]byte, 32)
	resp, err := t.scService.OpenSecureChannel(t.secureChannel, openReq, serverNonce)
	if err != nil {
		return err
	}
	if openReq.Type == securechannel.Renew {
		t.metrics.secureChannelRenewed()
		t.emit(audit.EventSecureChannelRenew, func(e *audit.Event) { e.WithData("token_id", resp.TokenID) })
	} else {
		t.emit(audit.EventSecureChannelOpen, func(e *audit.Event) { e.WithData("token_id", resp.TokenID) })
	}
	t.enqueueChunked(tcpmsg.TypeOpen, requestID, chunker.NodeID{Namespace: 0, Identifier: 0},
		securechannel.EncodeOpenResponse(resp))
	return nil
}

func (t *TcpTransport) handleClose(requestID uint32) error {
	err := t.scService.CloseSecureChannel()
	code := opcerrors.CodeOf(err)
	t.emit(audit.EventSecureChannelClose, func(e *audit.Event) { e.WithData("code", code.String()) })
	t.enqueueChunked(tcpmsg.TypeClose, requestID, chunker.NodeID{Namespace: 0, Identifier: 0},
		securechannel.EncodeServiceFault(code))
	return nil
}

func (t *TcpTransport) handleMessage(requestID uint32, svcReq *chunker.ServiceRequest) error {
	if t.opts.DecodeRequest == nil || t.opts.Handler == nil || t.opts.EncodeResponse == nil {
		return opcerrors.NewTransportError("handleMessage", opcerrors.BadServiceUnsupported,
			fmt.Errorf("no MessageHandler configured"))
	}
	req, err := t.opts.DecodeRequest(svcReq)
	if err != nil {
		return err
	}
	resp, err := t.opts.Handler.HandleMessage(requestID, req)
	if err != nil {
		return opcerrors.NewTransportError("handleMessage", opcerrors.BadUnexpectedError, err)
	}
	if resp == nil {
		// Handler retained the request (Publish): no enqueue until data is ready.
		if t.sess != nil {
			t.sess.HoldPublishRequest(requestID, time.Now().Add(t.opts.PublishRequestTimeout))
		}
		return nil
	}
	payload, nodeID, err := t.opts.EncodeResponse(resp)
	if err != nil {
		return opcerrors.NewTransportError("handleMessage", opcerrors.BadDecodingError, err)
	}
	t.enqueueChunked(tcpmsg.TypeMessage, requestID, nodeID, payload)
	return nil
}

func (t *TcpTransport) enqueueChunked(msgType tcpmsg.MsgType, requestID uint32, nodeID chunker.NodeID, payload []byte) {
	job := &writeJob{kind: jobChunked, messageType: msgType, requestID: requestID, nodeID: nodeID, payload: payload}
	select {
	case t.outbound <- job:
	default:
		t.log.Warn("outbound queue full, dropping response", "request_id", requestID)
	}
}

// writeLoop consumes the outbound queue, fed by both the read loop (request
// responses) and the subscription pump (publish responses). FIFO order on
// this channel becomes FIFO order on the wire.
func (t *TcpTransport) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-t.outbound:
			if !ok {
				return nil
			}
			if t.IsFinished() {
				return nil
			}
			if err := t.writeOne(job); err != nil {
				t.Finish(opcerrors.BadCommunicationError)
				return err
			}
			if job.kind == jobChunked && job.messageType == tcpmsg.TypeClose {
				// The CLO response is on the wire; the channel is closed.
				t.Finish(opcerrors.BadConnectionClosed)
				return nil
			}
		}
	}
}

func (t *TcpTransport) writeOne(job *writeJob) error {
	switch job.kind {
	case jobAck:
		raw := tcpmsg.WriteAck(job.ack)
		if _, err := t.conn.Write(raw); err != nil {
			return err
		}
		t.metrics.observeBytesOut(len(raw))
		return nil
	case jobChunked:
		security := t.securityHeaderFor(job.messageType)
		chunks, err := chunker.Encode(job.messageType, t.channelID, job.requestID, job.nodeID,
			job.payload, security, t.writer, t.opts.maxChunkBodySize())
		if err != nil {
			return err
		}
		for _, c := range chunks {
			var buf bytes.Buffer
			if _, err := t.secureChannel.ApplySecurity(c, &buf); err != nil {
				return err
			}
			header := tcpmsg.Header{Type: c.MessageType, Final: c.Final, Size: uint32(tcpmsg.HeaderSize + buf.Len())}
			raw := append(tcpmsg.EncodeHeader(header), buf.Bytes()...)
			if _, err := t.conn.Write(raw); err != nil {
				return err
			}
			t.metrics.observeBytesOut(len(raw))
		}
		return nil
	default:
		return fmt.Errorf("unknown write job kind %d", job.kind)
	}
}

func (t *TcpTransport) securityHeaderFor(msgType tcpmsg.MsgType) chunker.SecurityHeader {
	if msgType == tcpmsg.TypeOpen {
		return chunker.AsymmetricSecurityHeader{Policy: securechannel.NoneSecurityPolicyURI}
	}
	return chunker.SymmetricSecurityHeader{TokenID: t.secureChannel.CurrentTokenID()}
}

// helloTimeoutLoop disconnects a connection that never sends HELLO within
// HelloTimeout (IEC 62541-6 §7.1.2.1).
func (t *TcpTransport) helloTimeoutLoop(ctx context.Context) error {
	ticker := time.NewTicker(t.opts.HelloTimeoutPollRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if t.IsFinished() || t.helloReceived.Load() {
				return nil
			}
			if time.Since(t.startedAt) > t.opts.HelloTimeout {
				t.emit(audit.EventHelloTimeout, nil)
				t.finishWithError(opcerrors.NewTimeoutError("helloTimeout", t.opts.HelloTimeout, nil))
				return nil
			}
		}
	}
}

// subscriptionPump expires stale publish requests, ticks subscriptions, and
// forwards produced publish responses onto the same write channel request
// responses use.
func (t *TcpTransport) subscriptionPump(ctx context.Context) error {
	ticker := time.NewTicker(t.opts.SubscriptionTickRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if t.IsFinished() || t.sess == nil {
				continue
			}
			now := time.Now()
			t.sess.ExpireStalePublishRequests(now)
			factory := t.opts.MakePublishResp
			if factory == nil {
				factory = func(uint32) any { return nil }
			}
			t.sess.Tick(now, factory)
			for _, entry := range t.sess.TakePublishResponses() {
				if entry.Response == nil || t.opts.EncodeResponse == nil {
					continue
				}
				payload, nodeID, err := t.opts.EncodeResponse(entry.Response)
				if err != nil {
					t.log.Warn("failed to encode publish response", "error", err)
					continue
				}
				t.enqueueChunked(tcpmsg.TypeMessage, entry.RequestID, nodeID, payload)
			}
		}
	}
}

// finishWithError attempts a best-effort ERR frame (sent unsecured, per IEC
// 62541-6 §7.1.4) before finishing the transport with err's status code.
func (t *TcpTransport) finishWithError(err error) {
	code := opcerrors.CodeOf(err)
	raw := tcpmsg.WriteError(tcpmsg.ErrorBody{Code: uint32(code), Reason: err.Error()})
	if _, werr := t.conn.Write(raw); werr != nil {
		t.log.Warn("best-effort error frame write failed", "error", werr)
	}
	t.Finish(code)
}
