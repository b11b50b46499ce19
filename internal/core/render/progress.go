package render

import (
	"sync"

	"github.com/ixugo/goddd/pkg/conc"
)

// Event 进度通道上的单条事件。progress 事件可能因订阅方消费慢被丢弃，
// 终态事件保证送达且每个任务恰好一条
type Event struct {
	Type          string  `json:"type"` // progress/complete/error
	JobID         string  `json:"job_id"`
	Percent       float64 `json:"percent"`
	Phase         string  `json:"phase,omitempty"`
	Message       string  `json:"message,omitempty"`
	ResultAssetID string  `json:"result_asset_id,omitempty"`
	Error         string  `json:"error,omitempty"`
}

const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

const subBuffer = 64

type jobFeed struct {
	mu      sync.Mutex
	last    Event
	started bool
	done    bool
	subs    map[int]chan Event
	nextSub int
}

// Hub 渲染进度分发中心，推拉两用：订阅方收事件流，
// 轮询方读快照。百分比单调不回退
type Hub struct {
	feeds *conc.Map[string, *jobFeed]
}

func NewHub() *Hub {
	return &Hub{feeds: conc.NewMap[string, *jobFeed]()}
}

func (h *Hub) feed(jobID string) *jobFeed {
	f, _ := h.feeds.LoadOrStore(jobID, &jobFeed{subs: make(map[int]chan Event)})
	return f
}

// Publish 上报一条进度。终态事件发布后该任务的通道关闭，
// 后续 Publish 被忽略
func (h *Hub) Publish(ev Event) {
	f := h.feed(ev.JobID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return
	}
	// 百分比只进不退
	if f.started && ev.Percent < f.last.Percent {
		ev.Percent = f.last.Percent
	}
	f.last = ev
	f.started = true

	terminal := ev.Type == EventComplete || ev.Type == EventError
	for _, ch := range f.subs {
		if terminal {
			// 终态必达：缓冲被进度事件占满时丢弃最旧的腾位
			for {
				select {
				case ch <- ev:
				default:
					select {
					case <-ch:
					default:
					}
					continue
				}
				break
			}
			close(ch)
		} else {
			select {
			case ch <- ev:
			default:
			}
		}
	}
	if terminal {
		f.done = true
		f.subs = nil
	}
}

// Subscribe 订阅任务进度，先补发最近一条事件再接续实时流。
// 任务已终态时补发终态事件后立即关闭。返回的取消函数幂等
func (h *Hub) Subscribe(jobID string) (<-chan Event, func()) {
	f := h.feed(jobID)
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan Event, subBuffer)
	if f.started {
		ch <- f.last
	}
	if f.done {
		close(ch)
		return ch, func() {}
	}
	id := f.nextSub
	f.nextSub++
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Snapshot 拉模式读取最近状态
func (h *Hub) Snapshot(jobID string) (Event, bool) {
	f, ok := h.feeds.Load(jobID)
	if !ok {
		return Event{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.started
}

// Forget 任务终态且快照已落库后释放内存
func (h *Hub) Forget(jobID string) {
	h.feeds.Delete(jobID)
}
