package pusherws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
)

// keepalive pings the server after ActivityTimeout of silence and drops the
// connection when no message arrives within PongTimeout of a ping.
// One keepalive exists per connection.
type keepalive struct {
	s     *Socket
	conn  *websocket.Conn
	sched *cron.Cron

	mu    sync.Mutex
	entry cron.EntryID
	tick  time.Duration

	activity atomic.Int64 // time.Duration
	lastSeen atomic.Int64 // unix nanos
	pingAt   atomic.Int64 // unix nanos, 0 when no ping is outstanding
}

func newKeepalive(s *Socket, conn *websocket.Conn) *keepalive {
	k := &keepalive{s: s, conn: conn, sched: cron.New()}
	k.activity.Store(int64(s.opts.ActivityTimeout))
	k.touch()

	k.schedule(s.opts.ActivityTimeout)
	k.sched.Start()
	return k
}

// schedule (re)installs the check at min(PongTimeout, activity).
// cron.Every rounds intervals below one second up to one second.
func (k *keepalive) schedule(activity time.Duration) {
	tick := min(k.s.opts.PongTimeout, activity)

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.entry != 0 {
		if tick >= k.tick {
			return
		}
		k.sched.Remove(k.entry)
	}
	k.tick = tick
	k.entry = k.sched.Schedule(cron.Every(tick), cron.FuncJob(k.check))
}

// setActivityTimeout lowers the activity timeout to the server's value when
// the server asks for a shorter one, and checks at the shorter interval.
func (k *keepalive) setActivityTimeout(d time.Duration) {
	if d >= time.Duration(k.activity.Load()) {
		return
	}
	k.activity.Store(int64(d))
	k.schedule(d)
}

func (k *keepalive) touch() {
	k.lastSeen.Store(time.Now().UnixNano())
	k.pingAt.Store(0)
}

func (k *keepalive) check() {
	now := time.Now()
	if p := k.pingAt.Load(); p != 0 {
		if now.Sub(time.Unix(0, p)) >= k.s.opts.PongTimeout {
			k.s.log.Warn("pusherws: pong timeout, closing connection")
			k.conn.Close()
		}
		return
	}
	if now.Sub(time.Unix(0, k.lastSeen.Load())) < time.Duration(k.activity.Load()) {
		return
	}
	k.pingAt.Store(now.UnixNano())
	if err := k.s.write(k.conn, map[string]any{"event": "pusher:ping", "data": map[string]any{}}); err != nil {
		k.s.log.Debug("pusherws: ping failed", "err", err)
	}
}

// stop halts the schedule and waits for a running check to finish.
func (k *keepalive) stop() {
	<-k.sched.Stop().Done()
}
