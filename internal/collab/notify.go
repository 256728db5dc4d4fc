package collab

import (
	"github.com/serroba/online-docs/internal/conflict"
	"github.com/serroba/online-docs/internal/merge"
)

// Notification sends never block the controller. They are only called with
// c.mu held, so a closed controller cannot race a send.

func (c *Controller) emit(change ContentChange) {
	if c.closed {
		return
	}

	select {
	case c.changes <- change:
	default:
		c.dropped("content_changes")
	}
}

func (c *Controller) emitDetected(info conflict.Info) {
	if c.closed {
		return
	}

	select {
	case c.detected <- info:
	default:
		c.dropped("conflicts_detected")
	}
}

func (c *Controller) emitResolved(res merge.Resolution) {
	if c.closed {
		return
	}

	select {
	case c.resolved <- res:
	default:
		c.dropped("conflicts_resolved")
	}
}

func (c *Controller) emitError(err error) {
	if c.closed {
		return
	}

	select {
	case c.errs <- err:
	default:
		c.dropped("errors")
	}
}

func (c *Controller) dropped(channel string) {
	notificationsDropped.WithLabelValues(channel).Inc()
	c.logger.Warn("notification dropped, consumer is behind", "channel", channel)
}
