package clip

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// persister 落盘函数，由 Core 注入以便测试替换
type persister func(ctx context.Context, w *WorkingClip) error

// Saver 按片段 ID 合并快速连续编辑的写合并队列
// 同一片段在静默窗口内的多次保存只落盘一次，最后写入者胜出；
// 渲染请求前调用 Flush 强制落盘，避免服务端基于过期状态渲染
type Saver struct {
	quiet   time.Duration
	persist persister

	m       sync.Mutex
	pending map[string]*pendingSave
}

type pendingSave struct {
	clip  *WorkingClip
	timer *time.Timer
}

// NewSaver 创建写合并队列，quiet 为静默窗口
func NewSaver(quiet time.Duration, persist persister) *Saver {
	if quiet <= 0 {
		quiet = 800 * time.Millisecond
	}
	return &Saver{
		quiet:   quiet,
		persist: persist,
		pending: make(map[string]*pendingSave),
	}
}

// NewSaverWithCore 以 Core 的持久化函数创建写合并队列
func NewSaverWithCore(quiet time.Duration, core Core) *Saver {
	return NewSaver(quiet, core.persistTransform)
}

// Enqueue 记录最新编辑态并重置静默计时
func (s *Saver) Enqueue(w *WorkingClip) {
	s.m.Lock()
	defer s.m.Unlock()
	if p, ok := s.pending[w.ID]; ok {
		p.clip = w
		p.timer.Reset(s.quiet)
		return
	}
	p := &pendingSave{clip: w}
	p.timer = time.AfterFunc(s.quiet, func() { s.fire(w.ID) })
	s.pending[w.ID] = p
}

// Flush 立即落盘指定片段的待写状态，无待写时直接返回
func (s *Saver) Flush(ctx context.Context, clipID string) error {
	s.m.Lock()
	p, ok := s.pending[clipID]
	if ok {
		p.timer.Stop()
		delete(s.pending, clipID)
	}
	s.m.Unlock()
	if !ok {
		return nil
	}
	return s.persist(ctx, p.clip)
}

// FlushAll 落盘全部待写状态，服务停止前调用
func (s *Saver) FlushAll(ctx context.Context) {
	s.m.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.m.Unlock()
	for _, id := range ids {
		if err := s.Flush(ctx, id); err != nil {
			slog.Error("flush transform", "clip_id", id, "err", err)
		}
	}
}

// Discard 丢弃待写状态，片段删除时调用
func (s *Saver) Discard(clipID string) {
	s.m.Lock()
	defer s.m.Unlock()
	if p, ok := s.pending[clipID]; ok {
		p.timer.Stop()
		delete(s.pending, clipID)
	}
}

func (s *Saver) fire(clipID string) {
	s.m.Lock()
	p, ok := s.pending[clipID]
	if ok {
		delete(s.pending, clipID)
	}
	s.m.Unlock()
	if !ok {
		return
	}
	if err := s.persist(context.Background(), p.clip); err != nil {
		slog.Error("write-behind persist", "clip_id", clipID, "err", err)
	}
}
