package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"briefsmith/internal/api"
	"briefsmith/internal/client"
)

var errNoNotes = errors.New("no synthesis notes given (use --insight, --surprise, --constraint, --follow-up, --notes, or --file)")

// synthesisNotesFile is the YAML (or JSON) layout accepted by `synthesis --file`.
type synthesisNotesFile struct {
	KeyInsights     []string `yaml:"key_insights"`
	Surprises       []string `yaml:"surprises"`
	Constraints     []string `yaml:"constraints"`
	FollowUpActions []string `yaml:"follow_up_actions"`
	RawNotes        string   `yaml:"raw_notes"`
}

func newTriggerCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSendPacketCommand(ctx),
		newRunTriggerCommand(ctx, "update-brief", "Revise the brief from interviewee feedback",
			func(c *client.Client, cmd *cobra.Command, id, key string) (api.TriggerResponse, error) {
				return c.UpdateBrief(cmd.Context(), id, key)
			}),
		newRunTriggerCommand(ctx, "retry", "Retry a failed brief, revision, or synthesis run",
			func(c *client.Client, cmd *cobra.Command, id, key string) (api.TriggerResponse, error) {
				return c.Retry(cmd.Context(), id, key)
			}),
		newSynthesisCommand(ctx),
	}
}

func newSendPacketCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "send-packet <session-id>",
		Short: "Send the pre-interview packet to the interviewee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.SendPacket(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Packet sent for session %s (%s)\n", resp.Session.ID, resp.Status.Status)
				return nil
			})
		},
	}
}

type triggerFunc func(c *client.Client, cmd *cobra.Command, id, key string) (api.TriggerResponse, error)

func newRunTriggerCommand(ctx *commandContext, use, short string, trigger triggerFunc) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := trigger(c, cmd, args[0], attemptToken(key))
				if err != nil {
					return err
				}
				printTrigger(cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key; reuse it to retry the same request safely")
	return cmd
}

func newSynthesisCommand(ctx *commandContext) *cobra.Command {
	var notes api.SynthesisRequest
	var notesFile string
	var key string

	cmd := &cobra.Command{
		Use:   "synthesis <session-id>",
		Short: "Generate the post-interview synthesis from interview notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path := strings.TrimSpace(notesFile); path != "" {
				fromFile, err := loadSynthesisNotes(path)
				if err != nil {
					return err
				}
				notes = mergeNotes(fromFile, notes)
			}
			if synthesisNotesEmpty(notes) {
				return errNoNotes
			}
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.GenerateSynthesis(cmd.Context(), args[0], notes, attemptToken(key))
				if err != nil {
					return err
				}
				printTrigger(cmd, resp)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&notes.KeyInsights, "insight", nil, "Key insight (repeatable)")
	cmd.Flags().StringArrayVar(&notes.Surprises, "surprise", nil, "Surprise (repeatable)")
	cmd.Flags().StringArrayVar(&notes.Constraints, "constraint", nil, "Constraint (repeatable)")
	cmd.Flags().StringArrayVar(&notes.FollowUpActions, "follow-up", nil, "Follow-up action (repeatable)")
	cmd.Flags().StringVar(&notes.RawNotes, "notes", "", "Free-form interview notes")
	cmd.Flags().StringVarP(&notesFile, "file", "f", "", "YAML or JSON notes file")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key; reuse it to retry the same request safely")
	return cmd
}

func loadSynthesisNotes(path string) (api.SynthesisRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.SynthesisRequest{}, fmt.Errorf("read notes file: %w", err)
	}
	var parsed synthesisNotesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return api.SynthesisRequest{}, fmt.Errorf("parse notes file %s: %w", path, err)
	}
	return api.SynthesisRequest{
		KeyInsights:     parsed.KeyInsights,
		Surprises:       parsed.Surprises,
		Constraints:     parsed.Constraints,
		FollowUpActions: parsed.FollowUpActions,
		RawNotes:        parsed.RawNotes,
	}, nil
}

// mergeNotes appends flag values to the notes loaded from a file.
func mergeNotes(base, extra api.SynthesisRequest) api.SynthesisRequest {
	base.KeyInsights = append(base.KeyInsights, extra.KeyInsights...)
	base.Surprises = append(base.Surprises, extra.Surprises...)
	base.Constraints = append(base.Constraints, extra.Constraints...)
	base.FollowUpActions = append(base.FollowUpActions, extra.FollowUpActions...)
	if raw := strings.TrimSpace(extra.RawNotes); raw != "" {
		if base.RawNotes != "" {
			base.RawNotes += "\n\n"
		}
		base.RawNotes += raw
	}
	return base
}

func synthesisNotesEmpty(n api.SynthesisRequest) bool {
	return len(n.KeyInsights) == 0 && len(n.Surprises) == 0 && len(n.Constraints) == 0 &&
		len(n.FollowUpActions) == 0 && strings.TrimSpace(n.RawNotes) == ""
}

func printTrigger(cmd *cobra.Command, resp api.TriggerResponse) {
	out := cmd.OutOrStdout()
	if resp.Run == nil {
		fmt.Fprintf(out, "Session %s: %s\n", resp.SessionID, resp.Status)
		return
	}
	fmt.Fprintf(out, "Session %s: %s run accepted (token %s, status %s)\n", resp.SessionID, resp.Run.Kind, resp.Run.AttemptToken, resp.Status)
}
