package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/transcript"
)

func (c *cli) chatCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "chat <student> <message>",
		Short: "Send a message to a student and wait for the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.chat(cmd.Context(), args[0], strings.Join(args[1:], " "), timeout)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "time to wait for the reply")
	return cmd
}

func (a *app) chat(ctx context.Context, student, message string, timeout time.Duration) error {
	id, name, registered := a.student(ctx, student)
	if !registered {
		a.log.Warn().Str("student_id", id).Msg("student is not registered with the peer")
	}

	replies := make(chan bridge.StudentReplyEvent, 8)
	stop := a.listen(ctx, bridge.EventStudentReply, func(ev bridge.Event) {
		var reply bridge.StudentReplyEvent
		if err := ev.Decode(&reply); err != nil {
			return
		}
		select {
		case replies <- reply:
		default:
		}
	})
	defer stop()

	if _, err := a.transcripts.Append(ctx, id, transcript.Message{Sender: transcript.SenderPlayer, Content: message}); err != nil {
		a.log.Warn().Err(err).Msg("record message")
	}
	resp, err := a.client.StudentChat(ctx, id, message)
	if err != nil {
		return fmt.Errorf("send to %s: %w", name, err)
	}

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		select {
		case ev := <-replies:
			if ev.RequestID != resp.RequestID {
				continue
			}
			if !ev.Success {
				return fmt.Errorf("%s could not reply: %s", name, ev.Error)
			}
			if _, err := a.transcripts.Append(ctx, id, transcript.Message{Sender: transcript.SenderStudent, Content: ev.Content, RequestID: ev.RequestID}); err != nil {
				a.log.Warn().Err(err).Msg("record reply")
			}
			a.printf("%s: %s\n", name, ev.Content)
			return nil
		case <-wctx.Done():
			if errors.Is(wctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("no reply from %s within %s", name, timeout)
			}
			return wctx.Err()
		}
	}
}
