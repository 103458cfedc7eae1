package orchestrator

import (
	"errors"
	"math"
	"strings"
	"sync"
)

var (
	ErrNoURLs      = errors.New("at least one url is required")
	ErrTooManyURLs = errors.New("too many urls")
)

// NormalizeURLs 去掉空项，缺少协议时补 https://
func NormalizeURLs(raw []string, limit int) ([]string, error) {
	urls := make([]string, 0, len(raw))
	for _, u := range raw {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		lower := strings.ToLower(u)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			u = "https://" + u
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	if limit > 0 && len(urls) > limit {
		return nil, ErrTooManyURLs
	}
	return urls, nil
}

// JobStatus 批次状态
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCancelled JobStatus = "cancelled"
	JobDone      JobStatus = "done"
)

// Job 一个批次的运行状态，只由 Orchestrator 修改，其他 goroutine 通过访问器读取
type Job struct {
	ID   string
	URLs []string

	mu      sync.RWMutex
	status  JobStatus
	current int
	percent float64
}

func NewJob(id string, urls []string) *Job {
	return &Job{ID: id, URLs: urls, status: JobPending}
}

func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Current 当前任务序号（从 1 开始，未开始为 0）
func (j *Job) Current() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.current
}

func (j *Job) Percent() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.percent
}

func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

func (j *Job) setCurrent(i int) {
	j.mu.Lock()
	j.current = i
	j.mu.Unlock()
}

// advance 总进度只增不减
func (j *Job) advance(pct float64) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if pct > j.percent {
		j.percent = pct
	}
	return j.percent
}

func (j *Job) finish(s JobStatus) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
	j.percent = 100
	return j.percent
}

// slicePercent 任务 i（共 n 个）在 [ (i-1)/n*100, i/n*100 ) 内按 p/of 线性映射
func slicePercent(i, n, p, of int) float64 {
	if n <= 0 {
		return 0
	}
	width := 100 / float64(n)
	base := float64(i-1) * width
	if of <= 0 {
		return round2(base)
	}
	if p >= of {
		p = of - 1
	}
	if p < 0 {
		p = 0
	}
	return round2(base + width*float64(p)/float64(of))
}

func round2(f float64) float64 {
	return math.Floor(f*100) / 100
}
