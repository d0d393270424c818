package peer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/hostsdk"
	"github.com/gaspardpetit/shittim/internal/transcript"
)

func hostsdkEvent(name string, data json.RawMessage) hostsdk.Frame {
	return hostsdk.Frame{Type: hostsdk.FrameEvent, Name: name, Data: data}
}

func (p *Peer) replyDelay() time.Duration {
	spread := p.opts.ReplyMax - p.opts.ReplyMin
	if spread <= 0 {
		return p.opts.ReplyMin
	}
	return p.opts.ReplyMin + time.Duration(p.opts.Rand(int64(spread)))
}

// scheduleReply answers requestID as studentID after the reply delay. The
// reply is recorded in the transcript and emitted as a studentReply event.
func (p *Peer) scheduleReply(requestID, studentID string) {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	if p.closed {
		return
	}
	end := p.inflight.Begin()
	var t *time.Timer
	t = time.AfterFunc(p.replyDelay(), func() {
		defer end()
		p.timersMu.Lock()
		delete(p.timers, t)
		p.timersMu.Unlock()
		p.reply(requestID, studentID)
	})
	p.timers[t] = end
}

func (p *Peer) reply(requestID, studentID string) {
	content := bridge.CannedReply(studentID, p.opts.Rand)
	ev := bridge.StudentReplyEvent{
		RequestID:        requestID,
		StudentID:        studentID,
		Success:          true,
		Content:          content,
		PromptTokens:     100,
		CompletionTokens: 50,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.history.Append(ctx, studentID, transcript.Message{Sender: transcript.SenderStudent, Content: content, RequestID: requestID}); err != nil {
		p.log.Warn().Err(err).Str("student_id", studentID).Msg("record reply")
		ev.Success = false
		ev.Content = ""
		ev.Error = err.Error()
	}
	repliesTotal.Inc()
	if _, err := p.Emit(bridge.EventStudentReply, ev); err != nil {
		p.log.Error().Err(err).Str("request_id", requestID).Msg("emit reply")
	}
}
