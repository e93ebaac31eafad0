package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"briefsmith/internal/api"
	"briefsmith/internal/client"
)

func newSessionCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newCreateCommand(ctx),
		newListCommand(ctx),
		newShowCommand(ctx),
		newUploadCommand(ctx),
		newArtifactCommand(ctx),
		newAuditCommand(ctx),
	}
}

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateSessionRequest
	var uploadPath string
	var key string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an interview session and start its brief",
		RunE: func(cmd *cobra.Command, args []string) error {
			var upload []byte
			if path := strings.TrimSpace(uploadPath); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read upload: %w", err)
				}
				upload = data
				req.HasUpload = true
			}
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.CreateSession(cmd.Context(), req, key)
				if err != nil {
					return err
				}
				if upload != nil {
					uploaded, err := c.Upload(cmd.Context(), resp.Session.ID, filepath.Base(uploadPath), upload, "")
					if err != nil {
						return fmt.Errorf("session %s created but upload failed: %w", resp.Session.ID, err)
					}
					resp = uploaded
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created session %s (%s)\n", resp.Session.ID, resp.Status.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.CompanyName, "company", "", "Company name")
	cmd.Flags().StringVar(&req.LeaderName, "leader", "", "Interviewee name")
	cmd.Flags().StringVar(&req.LeaderTitle, "title", "", "Interviewee title")
	cmd.Flags().StringVar(&req.IntervieweeEmail, "email", "", "Interviewee email for packet delivery")
	cmd.Flags().StringArrayVar(&req.SourceURLs, "url", nil, "Source URL (repeatable)")
	cmd.Flags().StringVar(&uploadPath, "upload", "", "Document to upload as an additional source")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key for safe retries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("leader")
	return cmd
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "upload <session-id> <file>",
		Short: "Upload the supplementary document for a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read upload: %w", err)
			}
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.Upload(cmd.Context(), args[0], filepath.Base(args[1]), data, attemptToken(key))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to session %s (%s)\n", filepath.Base(args[1]), resp.Session.ID, resp.Status.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key for safe retries")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				sessions, err := c.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, sessions)
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, s := range sessions {
					rows = append(rows, []string{
						s.ID,
						s.CompanyName,
						s.LeaderName,
						s.Status,
						strconv.Itoa(s.CurrentBriefVersion),
						s.UpdatedAt,
					})
				}
				fmt.Fprintln(out, renderTable([]column{
					{header: "ID"},
					{header: "Company"},
					{header: "Leader"},
					{header: "Status"},
					{header: "Brief", numeric: true},
					{header: "Updated"},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum sessions to list (0 uses the server default)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its pipeline status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.Session(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, strings.Join(renderSession(resp, shouldColorize(out)), "\n"))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}

func renderSession(resp api.SessionResponse, colorize bool) []string {
	s := resp.Session
	st := resp.Status
	lines := renderSectionHeader("Session "+s.ID, colorize)
	lines = append(lines,
		renderStatusLine("Status", sessionStatusKind(st.Status), st.Status, colorize),
		renderStatusLine("Company", statusInfo, s.CompanyName, colorize),
		renderStatusLine("Leader", statusInfo, strings.TrimSpace(s.LeaderName+" "+parenthesize(s.LeaderTitle)), colorize),
		renderStatusLine("Brief version", statusInfo, strconv.Itoa(st.CurrentBriefVersion), colorize),
	)
	if len(s.SourceURLs) > 0 {
		lines = append(lines, renderStatusLine("Sources", statusInfo, strings.Join(s.SourceURLs, ", "), colorize))
	}
	if s.HasUpload {
		lines = append(lines, renderStatusLine("Upload", statusInfo, "received: "+yesNo(s.Uploaded), colorize))
	}
	if len(st.SourcesFailed) > 0 {
		lines = append(lines, renderStatusLine("Sources failed", statusWarn, strings.Join(st.SourcesFailed, ", "), colorize))
	}
	if st.QualityScore != nil {
		lines = append(lines, renderStatusLine("Quality score", statusInfo, strconv.Itoa(*st.QualityScore), colorize))
	}
	if s.PacketSentAt != "" {
		lines = append(lines, renderStatusLine("Packet sent", statusInfo, s.PacketSentAt, colorize))
	}
	if len(s.SelectedQuestions) > 0 {
		lines = append(lines, renderStatusLine("Questions chosen", statusInfo, strings.Join(s.SelectedQuestions, ", "), colorize))
	}
	if st.OptedOut {
		lines = append(lines, renderStatusLine("Opted out", statusWarn, "yes", colorize))
	}
	if st.ErrorMessage != "" {
		lines = append(lines, renderStatusLine("Error", statusError, st.ErrorMessage, colorize))
	}
	if run := st.ActiveRun; run != nil {
		lines = append(lines, renderStatusLine("Active run", statusInfo, fmt.Sprintf("%s at %s (token %s)", run.Kind, run.Stage, run.AttemptToken), colorize))
	}
	return lines
}

func parenthesize(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "(" + strings.TrimSpace(value) + ")"
}

func newArtifactCommand(ctx *commandContext) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "artifact <session-id> <kind>",
		Short: "Print a stored artifact (brief, packet, feedback, synthesis, ...)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				resp, err := c.Artifact(cmd.Context(), args[0], args[1], version)
				if err != nil {
					return err
				}
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, resp.Content, "", "  "); err != nil {
					pretty.Reset()
					pretty.Write(resp.Content)
				}
				fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "Artifact version (0 selects the latest)")

	cmd.AddCommand(&cobra.Command{
		Use:   "versions <session-id> <kind>",
		Short: "List the stored versions of an artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				versions, err := c.ArtifactVersions(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(versions) == 0 {
					fmt.Fprintln(out, "No versions")
					return nil
				}
				rows := make([][]string, 0, len(versions))
				for _, v := range versions {
					sha := v.SHA256
					if len(sha) > 12 {
						sha = sha[:12]
					}
					rows = append(rows, []string{strconv.Itoa(v.Version), strconv.FormatInt(v.Size, 10), sha, v.RunToken, v.CreatedAt})
				}
				fmt.Fprintln(out, renderTable([]column{
					{header: "Version", numeric: true},
					{header: "Bytes", numeric: true},
					{header: "SHA-256"},
					{header: "Run"},
					{header: "Created"},
				}, rows))
				return nil
			})
		},
	})
	return cmd
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "audit <session-id>",
		Short: "Show the audit trail of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(c *client.Client) error {
				entries, err := c.Audit(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No audit entries")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{e.Timestamp, e.Actor, e.Action, formatDetail(e.Detail)})
				}
				fmt.Fprintln(out, renderTable([]column{
					{header: "Time"},
					{header: "Actor"},
					{header: "Action"},
					{header: "Detail"},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries (0 uses the server default)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}

func formatDetail(detail map[string]any) string {
	if len(detail) == 0 {
		return ""
	}
	encoded, err := json.Marshal(detail)
	if err != nil {
		return fmt.Sprint(detail)
	}
	return string(encoded)
}
