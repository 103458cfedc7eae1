package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/site_compare_server/internal/pkg/queue"
)

// popTimeout 单次 BRPOP 的阻塞时间，也是 ctx 取消后 worker 退出的最长等待
var popTimeout = 5 * time.Second

// BatchHandler 处理一个队列消息
type BatchHandler interface {
	Process(ctx context.Context, msg *queue.BatchMessage) error
}

// RunPool 启动 n 个 worker 从队列取批次，ctx 结束后等待所有 worker 退出
func RunPool(ctx context.Context, q *queue.Queue, h BatchHandler, n int) {
	if n < 1 {
		n = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			loop(ctx, q, h, workerID)
		}(i)
	}
	wg.Wait()
}

func loop(ctx context.Context, q *queue.Queue, h BatchHandler, workerID int) {
	log := logrus.WithField("worker", workerID)
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		default:
		}

		msg, err := q.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("failed to pop batch")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		log.WithField("batch_id", msg.BatchID).Info("processing batch")
		if err := h.Process(ctx, msg); err != nil {
			log.WithError(err).WithField("batch_id", msg.BatchID).Error("batch failed")
		}
	}
}
