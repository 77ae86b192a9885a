package services

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"smart_head/internal/metrics"
)

// ModelLock 全局模型调用锁，保证同一时刻只有一次推理
type ModelLock struct {
	sem     *semaphore.Weighted
	metrics *metrics.Metrics
}

// NewModelLock 创建模型锁
func NewModelLock(m *metrics.Metrics) *ModelLock {
	return &ModelLock{
		sem:     semaphore.NewWeighted(1),
		metrics: m,
	}
}

// Do 持锁执行fn，等待锁期间ctx取消则返回ctx错误
func (l *ModelLock) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)

	l.metrics.ModelLockWait.Observe(time.Since(start).Seconds())
	return fn(ctx)
}
