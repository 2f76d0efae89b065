package usecase

import (
	"context"
	"time"
)

var processingMessages = []string{
	"Separating the vocals from your song...",
	"Vocal removal usually takes about one and a half times the length of the track.",
	"Still working. You can switch to another window and come back later.",
	"Almost there, hang tight.",
}

var loopingMessages = []string{
	"Looping your song...",
	"Stitching the region end to end.",
	"Longer loop durations take a little longer to render.",
}

// startProgress emits a rotating status message until the returned stop func
// is called. stop blocks until the emitter goroutine has exited.
func (m *SessionStateMachine) startProgress(ctx context.Context, messages []string) func() {
	if len(messages) == 0 {
		return func() {}
	}
	m.events.ProgressMessage(messages[0])
	if m.cfg.ProgressInterval <= 0 || len(messages) == 1 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(m.cfg.ProgressInterval)
		defer ticker.Stop()

		next := 1
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.events.ProgressMessage(messages[next%len(messages)])
				next++
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
