package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/shittim/internal/bridge"
	"github.com/gaspardpetit/shittim/internal/transcript"
)

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print bridge events and keep the roster fresh until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.watch(cmd.Context())
		},
	}
}

func (a *app) watch(ctx context.Context) error {
	a.printf("watching in %s mode\n", a.client.Resolve(ctx))
	for _, name := range bridge.EventNames {
		stop := a.listen(ctx, name, func(ev bridge.Event) {
			a.printf("%s %s %s\n", ev.Source, ev.Name, ev.Detail)
			if ev.Name == bridge.EventStudentReply {
				a.recordReply(ev)
			}
		})
		defer stop()
	}
	err := a.roster.Run(ctx, a.cfg.RosterInterval)
	if err == nil {
		<-ctx.Done()
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (a *app) recordReply(ev bridge.Event) {
	var reply bridge.StudentReplyEvent
	if err := ev.Decode(&reply); err != nil || !reply.Success || reply.StudentID == "" {
		return
	}
	msg := transcript.Message{Sender: transcript.SenderStudent, Content: reply.Content, RequestID: reply.RequestID}
	if _, err := a.transcripts.Append(context.Background(), reply.StudentID, msg); err != nil {
		a.log.Warn().Err(err).Msg("record reply")
	}
}
