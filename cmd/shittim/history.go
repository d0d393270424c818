package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/shittim/internal/transcript"
)

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [student]",
		Short: "Show the saved conversation with a student, or list chat partners",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			if len(args) == 0 {
				return a.conversations(cmd.Context())
			}
			id, name, _ := a.student(cmd.Context(), args[0])
			msgs, err := a.transcripts.Load(cmd.Context(), id)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				a.printf("no messages with %s\n", name)
				return nil
			}
			for _, m := range msgs {
				who := "sensei"
				if m.Sender == transcript.SenderStudent {
					who = name
				}
				a.printf("[%s] %s: %s\n", m.Time.Local().Format("01-02 15:04"), who, m.Content)
			}
			return nil
		},
	}
}

func (c *cli) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [student]",
		Short: "Clear the conversation with a student, or with everyone",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			ctx := cmd.Context()
			id, name := "", "everyone"
			if len(args) == 1 {
				id, name, _ = a.student(ctx, args[0])
			}
			if _, err := a.client.ClearHistory(ctx, id); err != nil {
				return err
			}
			if err := a.transcripts.Clear(ctx, id); err != nil {
				return err
			}
			a.printf("cleared history with %s\n", name)
			return nil
		},
	}
}

// conversations lists the registered students as chat partners, marking the
// ones the peer holds history for.
func (a *app) conversations(ctx context.Context) error {
	if _, err := a.roster.FetchAndMerge(ctx); err != nil {
		a.log.Warn().Err(err).Msg("refresh registered students")
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STUDENT\tNAME\tHISTORY")
	for _, cv := range a.roster.Conversations() {
		hist := "-"
		if cv.HasHistory {
			hist = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", cv.StudentID, cv.Name, hist)
	}
	return tw.Flush()
}
