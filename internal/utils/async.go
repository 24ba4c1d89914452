package utils

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// WorkerPool 有界并发任务处理池
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewWorkerPool 创建新的工作池
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 8 // 默认值
	}

	pool := &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), maxWorkers*2),
	}

	// 启动工作协程
	for i := 0; i < maxWorkers; i++ {
		go pool.worker()
	}

	return pool
}

// worker 工作协程
func (p *WorkerPool) worker() {
	for task := range p.taskQueue {
		p.run(task)
	}
}

// run 执行单个任务，任务 panic 不影响工作协程
func (p *WorkerPool) run(task func()) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("❌ 任务执行异常")
		}
	}()
	task()
}

// Submit 提交任务到池，队列已满时阻塞
func (p *WorkerPool) Submit(task func()) {
	p.wg.Add(1)
	p.taskQueue <- task
}

// Wait 等待所有任务完成
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Close 关闭工作池，已提交的任务仍会执行完
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() {
		close(p.taskQueue)
	})
}

// Size 返回工作协程数
func (p *WorkerPool) Size() int {
	return p.maxWorkers
}
