package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContextPauseAndAbort(t *testing.T) {
	proc := NewContext()
	assert.False(t, proc.Paused())
	assert.False(t, proc.Aborted())

	proc.SetPause(true)
	assert.True(t, proc.Paused())
	proc.SetPause(false)
	assert.False(t, proc.Paused())

	proc.Abort()
	assert.True(t, proc.Aborted())
}

func TestContextCounters(t *testing.T) {
	proc := NewContext()
	assert.Equal(t, int64(0), proc.ProcessedFrames())
	assert.Equal(t, int64(0), proc.TotalFrames())
	assert.True(t, proc.StartTime().IsZero())

	proc.setTotal(120)
	for i := 0; i < 3; i++ {
		proc.incrementProcessed()
	}

	assert.Equal(t, int64(3), proc.ProcessedFrames())
	assert.Equal(t, int64(120), proc.TotalFrames())
}

func TestContextProgressSnapshot(t *testing.T) {
	proc := NewContext()

	snapshot := proc.Progress()
	assert.Zero(t, snapshot.Elapsed)
	assert.Zero(t, snapshot.FPS)

	proc.markStart()
	proc.setTotal(10)
	proc.incrementProcessed()
	time.Sleep(5 * time.Millisecond)

	snapshot = proc.Progress()
	assert.Equal(t, int64(1), snapshot.ProcessedFrames)
	assert.Equal(t, int64(10), snapshot.TotalFrames)
	assert.Greater(t, snapshot.Elapsed, time.Duration(0))
	assert.Greater(t, snapshot.FPS, 0.0)
}
