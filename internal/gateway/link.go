package gateway

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"portal/internal/obs"
	"portal/pkg/exception"
	"portal/pkg/websocket"
)

// connLink drives one transport connection: it feeds inbound frames to the
// handshake, runs the heartbeat schedule and presence rotation, and turns
// the connection outcome into an *Error for the reconnect policy.
type connLink struct {
	c     *Client
	conn  *websocket.Connection
	hb    *heartbeat
	timer *time.Timer
}

func (l *connLink) run(ctx context.Context) *Error {
	c, h := l.c, l.c.handshake
	h.connected()
	c.setState(StateAwaitingHello)
	defer func() {
		l.stopHeartbeat()
		c.rotator.suspend()
		h.disconnected()
		c.setState(StateDisconnected)
		l.conn.Release()
	}()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case ev, ok := <-l.conn.Events():
			if !ok {
				return transportError(websocket.CloseNetworkFailure, exception.ErrConnectionClose)
			}
			if ev.Close != nil {
				return classifyClose(*ev.Close)
			}
			f, err := decodeFrame(ev.Payload)
			if err != nil {
				if gerr := h.protocolError(l, Frame{Op: -1}, err.Error()); gerr != nil {
					l.conn.Abort("protocol error")
					return gerr
				}
				continue
			}
			if gerr := h.handle(l, f); gerr != nil {
				l.close(gerr)
				return gerr
			}
			c.setState(h.state)
		case <-l.heartbeatC():
			now := time.Now()
			if !l.hb.due(now) {
				l.timer.Reset(l.hb.until(now))
				continue
			}
			if l.hb.beat(now) {
				c.metrics.Inc(obs.CounterZombies)
				logs.Warnf("gateway: no heartbeat ack for %d intervals, conn=%s", maxMissedAcks, l.conn.ID())
				l.conn.Abort("heartbeat ack timeout")
				return &Error{Kind: KindHeartbeatTimeout, Code: websocket.CloseNetworkFailure, Resumable: true, Err: exception.ErrHeartbeatTimeout}
			}
			if err := l.sendHeartbeat(); err != nil {
				l.conn.Abort(err.Error())
				return transportError(0, err)
			}
			l.timer.Reset(l.hb.until(time.Now()))
		case <-c.rotator.C():
			if h.state != StateReady {
				continue
			}
			if err := l.send(OpPresenceUpdate, c.presence.Advance()); err != nil {
				logs.Warnf("gateway: presence update: %v", err)
				continue
			}
			c.metrics.Inc(obs.CounterPresenceUpdates)
		}
	}
}

// close ends the transport after the handshake decided the connection is
// over. Requested reconnects and resumable invalid sessions close with
// CloseResumable so the server keeps the session.
func (l *connLink) close(gerr *Error) {
	code := CloseResumable
	switch gerr.Kind {
	case KindReconnect:
	case KindInvalidSession:
		if !gerr.Resumable {
			code = websocket.CloseNormal
		}
	default:
		l.conn.Abort(gerr.Error())
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.c.cfg.ShutdownTimeout)
	defer cancel()
	if err := l.conn.Shutdown(ctx, code, gerr.Kind.String()); err != nil {
		logs.Debugf("gateway: close conn=%s: %v", l.conn.ID(), err)
	}
}

// shutdown closes the connection on cancellation.
func (l *connLink) shutdown() {
	code := websocket.CloseNormal
	if l.c.cfg.ShutdownResumable {
		code = CloseResumable
	} else {
		l.c.closedNormally = true
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.c.cfg.ShutdownTimeout)
	defer cancel()
	if err := l.conn.Shutdown(ctx, code, "shutdown"); err != nil {
		logs.Warnf("gateway: graceful close conn=%s: %v", l.conn.ID(), err)
		return
	}
	logs.Infof("gateway: closed conn=%s with %d", l.conn.ID(), code)
}

func (l *connLink) heartbeatC() <-chan time.Time {
	if l.timer == nil {
		return nil
	}
	return l.timer.C
}

func (l *connLink) stopHeartbeat() {
	if l.timer != nil {
		l.timer.Stop()
	}
}

func (l *connLink) sendHeartbeat() error {
	var d *int64
	if seq, ok := l.c.session.Sequence(); ok {
		d = &seq
	}
	if err := l.send(OpHeartbeat, d); err != nil {
		return err
	}
	l.c.metrics.Inc(obs.CounterHeartbeats)
	return nil
}

func (l *connLink) send(op Opcode, d any) error {
	buf, err := encodeFrame(op, d)
	if err != nil {
		return err
	}
	if err := l.conn.Send(buf); err != nil {
		return err
	}
	switch op {
	case OpIdentify:
		l.c.metrics.Inc(obs.CounterIdentifies)
	case OpResume:
		l.c.metrics.Inc(obs.CounterResumes)
	}
	return nil
}

func (l *connLink) startHeartbeat(interval time.Duration) {
	now := time.Now()
	l.hb = newHeartbeat(interval, now, l.c.rng)
	l.stopHeartbeat()
	l.timer = time.NewTimer(l.hb.until(now))
}

func (l *connLink) heartbeatNow() error {
	if err := l.sendHeartbeat(); err != nil {
		return err
	}
	if l.hb != nil {
		l.hb.sentOutOfBand(time.Now())
	}
	return nil
}

func (l *connLink) ackHeartbeat() {
	if l.hb == nil {
		return
	}
	rtt := l.hb.ack(time.Now())
	l.c.metrics.Inc(obs.CounterHeartbeatAcks)
	l.c.metrics.ObserveHeartbeat(rtt)
}

func (l *connLink) ready(resumed bool) {
	c := l.c
	if resumed {
		c.metrics.Inc(obs.CounterResumed)
	} else {
		c.metrics.Inc(obs.CounterReady)
	}
	c.policy.reset()
	c.rotator.resume()
	c.checkpoint()
	state := c.session.Snapshot()
	logs.Infof("gateway: ready session=%s resumed=%t conn=%s", state.ID, resumed, l.conn.ID())
}

func (l *connLink) deliver(d Dispatch) {
	c := l.c
	c.metrics.Inc(obs.CounterDispatches)
	if c.queue == nil {
		return
	}
	if _, dropped := c.queue.Push(d); dropped > 0 {
		c.metrics.Add(obs.CounterDispatchDrops, uint64(dropped))
		logs.Warnf("gateway: dispatch queue full, dropped %d event(s) at %s seq=%d", dropped, d.Type, d.Seq)
	}
}

func (l *connLink) dropped(Opcode) {
	l.c.metrics.Inc(obs.CounterProtocolErrors)
}

func (l *connLink) url() string {
	return l.conn.URL()
}
