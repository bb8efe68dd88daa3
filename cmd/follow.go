package cmd

import (
	"io"
	"sync"
	"time"

	"github.com/energylab/metronom/cmd/common"
	"github.com/energylab/metronom/pkg/metrolib"
	"github.com/vbauerster/mpb/v8"
)

// follower renders the progress of one run from its status updates. It
// serves both daemon pushes and the in-process status tracker.
type follower struct {
	mu      sync.Mutex
	runID   string
	p       *mpb.Progress
	bar     *mpb.Bar
	msg     common.StatusMessage
	seen    bool
	ended   bool
	last    metrolib.RunStatus
	endedCh chan struct{}
}

func newFollower(w io.Writer) *follower {
	return &follower{
		p:       mpb.New(mpb.WithOutput(w), mpb.WithWidth(48), mpb.WithRefreshRate(100*time.Millisecond)),
		endedCh: make(chan struct{}),
	}
}

// watch selects the run to follow. An empty id follows any status.
func (f *follower) watch(runID string) {
	f.mu.Lock()
	f.runID = runID
	f.mu.Unlock()
}

func (f *follower) OnStatus(s metrolib.RunStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ended || (f.runID != "" && s.RunID != f.runID) {
		return
	}
	f.last = s
	if f.bar == nil && s.Total > 0 {
		f.bar = common.InitRunBar(f.p, s.Scenario, int64(s.Total), &f.msg)
	}
	f.msg.Set(s.LastMessage)
	if f.bar != nil {
		f.bar.SetCurrent(int64(s.Completed))
	}
	if s.Running {
		f.seen = true
	}
	if s.OperationsFinished || s.Failed || (f.seen && !s.Running) {
		f.ended = true
		if f.bar != nil && !f.bar.Completed() {
			f.bar.Abort(false)
		}
		close(f.endedCh)
	}
}

// endedC is closed once the run finished its operations, failed or
// stopped.
func (f *follower) endedC() <-chan struct{} {
	return f.endedCh
}

// wait flushes the progress output and returns the last status seen.
func (f *follower) wait() metrolib.RunStatus {
	f.mu.Lock()
	if f.bar != nil && !f.bar.Completed() && !f.ended {
		f.bar.Abort(false)
	}
	f.mu.Unlock()
	f.p.Wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}
