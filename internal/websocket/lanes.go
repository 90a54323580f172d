package websocket

import "sync"

// lanes 按用户串行执行回调：同一用户的 connect / incoming / disconnect
// 严格按到达 hub 的顺序执行，不同用户之间互不阻塞。
type lanes struct {
	mu      sync.Mutex
	pending map[string][]func() // key 存在即表示该用户有 drain 在跑
}

func newLanes() *lanes {
	return &lanes{pending: make(map[string][]func())}
}

func (l *lanes) run(key string, fn func()) {
	l.mu.Lock()
	q, busy := l.pending[key]
	l.pending[key] = append(q, fn)
	l.mu.Unlock()
	if !busy {
		go l.drain(key)
	}
}

func (l *lanes) drain(key string) {
	for {
		l.mu.Lock()
		q := l.pending[key]
		if len(q) == 0 {
			delete(l.pending, key)
			l.mu.Unlock()
			return
		}
		fn := q[0]
		l.pending[key] = q[1:]
		l.mu.Unlock()
		fn()
	}
}
