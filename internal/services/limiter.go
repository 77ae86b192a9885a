package services

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitorTTL 超过该时间未出现的IP会被清理
const visitorTTL = 3 * time.Minute

// ipLimiter 按来源IP限制新连接速率
type ipLimiter struct {
	rps   float64
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		rps:      rps,
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

// allow 判断来自addr的新连接是否放行，rps<=0表示不限流
func (l *ipLimiter) allow(addr net.Addr) bool {
	if l.rps <= 0 {
		return true
	}
	ip := addr.String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	l.mu.Lock()
	v, exists := l.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()

	return v.limiter.Allow()
}

// cleanup 定期清理过期的IP，直到ctx取消
func (l *ipLimiter) cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict(time.Now())
		}
	}
}

func (l *ipLimiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(l.visitors, ip)
		}
	}
}
