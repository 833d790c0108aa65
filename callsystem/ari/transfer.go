package ari

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentplexus/omnivoice-core/tool"
)

// xferPhase is one state of the attended-transfer sub-state machine:
// Idle -> Consulting -> {Accepted | Cancelled | TimedOut} -> Idle.
type xferPhase string

const (
	xferIdle      xferPhase = "idle"
	xferConsult   xferPhase = "consulting"
	xferAccepted  xferPhase = "accepted"
	xferCancelled xferPhase = "cancelled"
	xferTimedOut  xferPhase = "timed_out"
)

// transferState tracks the bridge backing a call's media path and, while
// an attended transfer is in flight, the consult leg's channel id and
// phase. One transferState lives per Call for its whole lifetime; only
// consultChannelID/phase churn per transfer attempt.
type transferState struct {
	mu sync.Mutex

	bridgeID        string
	phase           xferPhase
	consultChannel  string
	cancelConsult   context.CancelFunc
}

// BlindTransfer moves the caller channel out of its bridge and redirects
// it to destination via a new Originate into the Stasis app's consult
// context, without ever putting the agent on the line again. Implements
// tool.TelephonyOps.
func (c *Call) BlindTransfer(ctx context.Context, destination string) error {
	c.mu.RLock()
	xfer := c.xfer
	c.mu.RUnlock()
	if xfer == nil {
		return fmt.Errorf("ari: blind transfer %s: no active bridge", c.id)
	}

	xfer.mu.Lock()
	defer xfer.mu.Unlock()
	if xfer.phase == xferConsult {
		return fmt.Errorf("ari: blind transfer %s: attended transfer already in progress", c.id)
	}

	if err := c.client.RemoveChannelFromBridge(ctx, xfer.bridgeID, c.id); err != nil {
		log.Warn().Str("call_id", c.id).Err(err).Msg("ari: remove caller leg before blind transfer failed")
	}
	destID, err := c.client.Originate(ctx, "PJSIP/"+destination, c.callerNumber)
	if err != nil {
		return fmt.Errorf("ari: blind transfer %s to %s: %w", c.id, destination, err)
	}
	if err := c.client.AddChannelToBridge(ctx, xfer.bridgeID, destID); err != nil {
		return fmt.Errorf("ari: blind transfer %s: bridge destination leg: %w", c.id, err)
	}
	c.setState(StateTransferring)
	return nil
}

// AttendedTransfer dials destination on a consult leg while the caller stays
// on the existing bridge, waits the full ringTimeout, adds the consult leg
// to that bridge, waits the full acceptTimeout, then removes the consult
// leg, returns the caller to conversation and reports the attempt as not
// accepted. It does not detect the destination answering, plays no
// announcement, and has no accept or decline signal, so it never reports
// success. If ctx ends or CancelTransfer is called first, the attempt ends
// early with a failed result. Implements tool.TelephonyOps.
func (c *Call) AttendedTransfer(ctx context.Context, destination string, ringTimeout, acceptTimeout time.Duration) (tool.Result, error) {
	c.mu.RLock()
	xfer := c.xfer
	c.mu.RUnlock()
	if xfer == nil {
		return tool.Result{Status: tool.StatusFailed, Message: "no active bridge"}, nil
	}

	xfer.mu.Lock()
	if xfer.phase == xferConsult {
		xfer.mu.Unlock()
		return tool.Result{Status: tool.StatusFailed, Message: "attended transfer already in progress"}, nil
	}
	consultCtx, cancel := context.WithTimeout(ctx, ringTimeout+acceptTimeout)
	xfer.phase = xferConsult
	xfer.cancelConsult = cancel
	xfer.mu.Unlock()

	c.setState(StateTransferring)
	defer cancel()

	consultID, err := c.client.Originate(consultCtx, "PJSIP/"+destination, c.callerNumber)
	if err != nil {
		c.resetTransfer(xfer, xferCancelled)
		return tool.Result{Status: tool.StatusFailed, Message: err.Error()}, nil
	}
	xfer.mu.Lock()
	xfer.consultChannel = consultID
	xfer.mu.Unlock()

	select {
	case <-time.After(ringTimeout):
	case <-consultCtx.Done():
		c.resetTransfer(xfer, xferTimedOut)
		c.setState(StateConversing)
		return tool.Result{Status: tool.StatusFailed, Message: "attended transfer: destination did not answer in time"}, nil
	}

	if err := c.client.AddChannelToBridge(consultCtx, xfer.bridgeID, consultID); err != nil {
		c.resetTransfer(xfer, xferCancelled)
		return tool.Result{Status: tool.StatusFailed, Message: fmt.Sprintf("attended transfer: bridge consult leg: %v", err)}, nil
	}

	select {
	case <-time.After(acceptTimeout):
		if err := c.client.RemoveChannelFromBridge(ctx, xfer.bridgeID, consultID); err != nil {
			log.Warn().Str("call_id", c.id).Err(err).Msg("ari: remove timed-out consult leg failed")
		}
		c.resetTransfer(xfer, xferTimedOut)
		c.setState(StateConversing)
		return tool.Result{Status: tool.StatusFailed, Message: "attended transfer: not accepted in time"}, nil
	case <-consultCtx.Done():
		c.resetTransfer(xfer, xferCancelled)
		return tool.Result{Status: tool.StatusFailed, Message: "attended transfer: cancelled"}, nil
	}
}

// CancelTransfer aborts an in-progress attended transfer and returns the
// caller to conversation. Implements tool.TelephonyOps.
func (c *Call) CancelTransfer(ctx context.Context) error {
	c.mu.RLock()
	xfer := c.xfer
	c.mu.RUnlock()
	if xfer == nil {
		return fmt.Errorf("ari: cancel transfer %s: no active bridge", c.id)
	}

	xfer.mu.Lock()
	if xfer.phase != xferConsult {
		xfer.mu.Unlock()
		return fmt.Errorf("ari: cancel transfer %s: no transfer in progress", c.id)
	}
	consultID := xfer.consultChannel
	cancelConsult := xfer.cancelConsult
	xfer.mu.Unlock()

	if cancelConsult != nil {
		cancelConsult()
	}
	if consultID != "" {
		if err := c.client.Hangup(ctx, consultID, "normal"); err != nil {
			log.Warn().Str("call_id", c.id).Err(err).Msg("ari: hangup consult leg on cancel failed")
		}
	}
	c.resetTransfer(xfer, xferCancelled)
	c.setState(StateConversing)
	return nil
}

func (c *Call) resetTransfer(xfer *transferState, phase xferPhase) {
	xfer.mu.Lock()
	xfer.phase = phase
	xfer.consultChannel = ""
	xfer.cancelConsult = nil
	xfer.mu.Unlock()
}
