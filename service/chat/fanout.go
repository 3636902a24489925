package chat

type fanoutJob struct {
	sessions []*Session
	payload  []byte
}

// Fanout 出站扇出工人池：入队交给会话队列，慢会话由队列的
// 丢弃策略兜底，工人永不阻塞在单个收端上。
type Fanout struct {
	jobs chan fanoutJob
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	for i := 0; i < workers; i++ {
		go func() {
			for job := range f.jobs {
				for _, s := range job.sessions {
					s.enqueue(job.payload)
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Broadcast(sessions []*Session, payload []byte) {
	if len(sessions) == 0 || len(payload) == 0 {
		return
	}
	f.jobs <- fanoutJob{sessions: sessions, payload: payload}
}
