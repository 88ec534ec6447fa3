package usecase

import (
	"context"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
	"realtalk/internal/transcript"
)

// consumeControlEvents is the only goroutine that touches active.reducer.
// Messages are reduced strictly in arrival order.
func (c *SessionController) consumeControlEvents(active *activeSession, control ports.ControlChannel) {
	defer close(active.eventsDone)

	opened := control.Opened()
	messages := control.Messages()
	for {
		select {
		case <-opened:
			opened = nil
			c.logger.Debugw("control channel open", "session", active.id, "label", control.Label())
			c.sendGreeting(active, control)
		case payload, ok := <-messages:
			if !ok {
				return
			}
			c.handleControlMessage(active, payload)
		}
	}
}

func (c *SessionController) handleControlMessage(active *activeSession, payload []byte) {
	event, err := transcript.Decode(payload)
	if err != nil {
		c.logger.Warnw("dropping malformed control message", "session", active.id, "error", err, "bytes", len(payload))
		return
	}

	instructions := active.reducer.Apply(event)
	c.mu.Lock()
	active.snapshot = active.reducer.Items()
	c.mu.Unlock()

	for _, instruction := range instructions {
		if !c.isLive(active) {
			return
		}
		switch instruction.Kind {
		case transcript.InstructionRender:
			c.events.TranscriptUpdated(instruction.Render)
			if instruction.Render.Complete {
				c.archiveItem(active, instruction.Render.Item())
			}
		case transcript.InstructionResponseStarted:
			c.events.ResponseStarted()
		case transcript.InstructionError:
			c.fail(active, instruction.Err)
			return
		}
	}
}

func (c *SessionController) archiveItem(active *activeSession, item domain.TranscriptItem) {
	if c.archive == nil || active.archived[item.ItemID] {
		return
	}
	active.archived[item.ItemID] = true

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := c.archive.Append(ctx, active.id, item); err != nil {
		c.logger.Warnw("failed to archive transcript item", "session", active.id, "itemId", item.ItemID, "error", err)
	}
}
