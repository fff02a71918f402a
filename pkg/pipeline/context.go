package pipeline

import (
	"sync/atomic"
	"time"
)

// Context is the processing state shared between the pipeline and an
// external controller. The controller flips Pause/Abort; the pipeline
// reads them at a bounded polling interval and updates the frame counters.
// All fields are safe for concurrent use.
type Context struct {
	pause     atomic.Bool
	abort     atomic.Bool
	processed atomic.Int64
	total     atomic.Int64
	startTime atomic.Int64 // unix nanoseconds, 0 until the loop starts
}

func NewContext() *Context {
	return &Context{}
}

func (c *Context) SetPause(pause bool) {
	c.pause.Store(pause)
}

func (c *Context) Paused() bool {
	return c.pause.Load()
}

// Abort requests a hard stop: the control loop terminates without draining
// any stage. Frames already sent into the encoder are abandoned.
func (c *Context) Abort() {
	c.abort.Store(true)
}

func (c *Context) Aborted() bool {
	return c.abort.Load()
}

// ProcessedFrames is incremented once per frame that reaches the encoder,
// or per filtered frame in benchmark mode.
func (c *Context) ProcessedFrames() int64 {
	return c.processed.Load()
}

// TotalFrames is a best-effort estimate probed once before processing
// starts. Zero means unknown.
func (c *Context) TotalFrames() int64 {
	return c.total.Load()
}

func (c *Context) StartTime() time.Time {
	ns := c.startTime.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (c *Context) incrementProcessed() {
	c.processed.Add(1)
}

func (c *Context) setTotal(total int64) {
	c.total.Store(total)
}

func (c *Context) markStart() {
	c.startTime.Store(time.Now().UnixNano())
}

// Progress is a point-in-time snapshot for external reporters.
type Progress struct {
	ProcessedFrames int64
	TotalFrames     int64
	Elapsed         time.Duration
	FPS             float64
}

func (c *Context) Progress() Progress {
	p := Progress{
		ProcessedFrames: c.ProcessedFrames(),
		TotalFrames:     c.TotalFrames(),
	}
	if start := c.StartTime(); !start.IsZero() {
		p.Elapsed = time.Since(start)
		if p.Elapsed > 0 {
			p.FPS = float64(p.ProcessedFrames) / p.Elapsed.Seconds()
		}
	}
	return p
}
