package main

import (
	"encoding/base64"
	"fmt"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/internal/domain/conversation"
	"github.com/parakeetlabs/perch/internal/domain/document"
	"github.com/parakeetlabs/perch/internal/domain/health"
	"github.com/parakeetlabs/perch/internal/domain/schedule"
	"github.com/parakeetlabs/perch/internal/infra/diagnostics"
)

// tenantRequired marks commands that cannot run without an active
// company; bootstrap treats platform failures as fatal for them.
var tenantRequired = map[string]string{"tenant": "required"}

func newRootCommand() *cobra.Command {
	var (
		a       *app
		jsonOut bool
	)

	root := &cobra.Command{
		Use:           "perchctl",
		Short:         "Operator console for the Parakeet chatbot platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if a, err = buildApp(jsonOut); err != nil {
				return err
			}
			return a.bootstrap(cmd.Context(), cmd.Annotations["tenant"] == "required")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.Close()
			}
		},
	}
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit JSON instead of tables")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	root.CompletionOptions.DisableDefaultCmd = true

	get := func() *app { return a }
	root.AddCommand(
		newCompaniesCommand(get),
		newDocumentsCommand(get),
		newChatCommand(get),
		newVoiceCommand(get),
		newImageCommand(get),
		newScheduleCommand(get),
		newAdminCommand(get),
		newHealthCommand(get),
		newMonitorCommand(get),
		newConsoleCommand(get),
	)
	return root
}

func newCompaniesCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "companies",
		Short: "List and switch between companies",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the companies this operator manages",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			list, err := a.companies.List(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(list)
			}
			active := a.session.ActiveOrEmpty()
			a.table(func(w *tabwriter.Writer) {
				fmt.Fprintln(w, " \tID\tNAME\tPLAN\tENABLED\tCREATED")
				for _, c := range list {
					marker := " "
					if c.ID == active {
						marker = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						marker, c.ID, c.Name, c.Plan, yesNo(c.Active), formatTime(c.CreatedAt))
				}
			})
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "use <company-id>",
		Short:       "Make a company the active tenant",
		Args:        exactArgs(1),
		Annotations: tenantRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			warnings, err := a.companies.SelectAndReport(cmd.Context(), company.ID(args[0]))
			if err != nil {
				return err
			}
			if warnings != nil {
				fmt.Fprintln(os.Stderr, "warning:", warnings)
			}
			fmt.Println("active company:", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "status [company-id]",
		Short:       "Show a company's status card",
		Args:        maxArgs(1),
		Annotations: tenantRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			id := a.session.ActiveOrEmpty()
			if len(args) == 1 {
				id = company.ID(args[0])
			}
			st, meta, err := a.companies.Status(cmd.Context(), id)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(st)
			}
			a.table(func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "company:\t%s\n", st.CompanyID)
				fmt.Fprintf(w, "plan:\t%s\n", st.Plan)
				fmt.Fprintf(w, "documents:\t%d\n", st.DocumentCount)
				fmt.Fprintf(w, "conversations today:\t%d\n", st.ConversationsToday)
				fmt.Fprintf(w, "indexed at:\t%s\n", formatTime(st.IndexedAt))
				if len(st.Flags) > 0 {
					fmt.Fprintf(w, "flags:\t%s\n", strings.Join(st.Flags, ", "))
				}
				fmt.Fprintf(w, "source:\t%s\n", cacheNote(meta))
			})
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "config [company-id]",
		Short:       "Show a company's runtime configuration",
		Args:        maxArgs(1),
		Annotations: tenantRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			id := a.session.ActiveOrEmpty()
			if len(args) == 1 {
				id = company.ID(args[0])
			}
			rc, meta, err := a.companies.Config(cmd.Context(), id)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(rc)
			}
			a.table(func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "company:\t%s\n", rc.CompanyID)
				for _, name := range slices.Sorted(maps.Keys(rc.Features)) {
					fmt.Fprintf(w, "feature %s:\t%s\n", name, onOff(rc.Features[name]))
				}
				fmt.Fprintf(w, "max documents:\t%d\n", rc.Limits.MaxDocuments)
				fmt.Fprintf(w, "max tokens/day:\t%d\n", rc.Limits.MaxTokensPerDay)
				fmt.Fprintf(w, "max sessions:\t%d\n", rc.Limits.MaxSessions)
				fmt.Fprintf(w, "source:\t%s\n", cacheNote(meta))
			})
			return nil
		},
	})

	return cmd
}

func newDocumentsCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "documents",
		Aliases:     []string{"docs"},
		Short:       "Manage the active company's knowledge base",
		Annotations: tenantRequired,
	}

	cmd.AddCommand(&cobra.Command{
		Use:         "list",
		Short:       "List knowledge base documents",
		Args:        maxArgs(0),
		Annotations: tenantRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			docs, err := a.documents.List(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(docs)
			}
			a.table(func(w *tabwriter.Writer) {
				fmt.Fprintln(w, "ID\tNAME\tSIZE\tTYPE\tINDEXED\tUPLOADED\tTAGS")
				for _, d := range docs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						d.ID, d.Name, formatBytes(d.SizeBytes), d.ContentType,
						yesNo(d.Indexed), formatTime(d.UploadedAt), strings.Join(d.Tags, ","))
				}
			})
			return nil
		},
	})

	uploadCmd := &cobra.Command{
		Use:         "upload <file>",
		Short:       "Upload a document to the knowledge base",
		Args:        exactArgs(1),
		Annotations: tenantRequired,
	}
	var (
		uploadName string
		uploadType string
		uploadTags []string
	)
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "document name (default: file name)")
	uploadCmd.Flags().StringVar(&uploadType, "type", "", "content type (default: sniffed)")
	uploadCmd.Flags().StringSliceVar(&uploadTags, "tags", nil, "tags to attach")
	uploadCmd.RunE = func(cmd *cobra.Command, args []string) error {
		a := get()
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading upload: %w", err)
		}
		name := uploadName
		if name == "" {
			name = filepath.Base(args[0])
		}
		content, detected := encodePayload(data)
		contentType := uploadType
		if contentType == "" {
			contentType = detected
		}
		doc, err := a.documents.Upload(cmd.Context(), document.Upload{
			Name:        name,
			Content:     content,
			ContentType: contentType,
			Tags:        uploadTags,
		})
		if err != nil {
			return err
		}
		if a.jsonOut {
			return a.printJSON(doc)
		}
		fmt.Printf("uploaded %s as %s (%s)\n", name, doc.ID, formatBytes(doc.SizeBytes))
		return nil
	}
	cmd.AddCommand(uploadCmd)

	cmd.AddCommand(&cobra.Command{
		Use:         "delete <document-id>",
		Short:       "Delete a document from the knowledge base",
		Args:        exactArgs(1),
		Annotations: tenantRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.documents.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("deleted", args[0])
			return nil
		},
	})

	searchCmd := &cobra.Command{
		Use:         "search <query>...",
		Short:       "Search the knowledge base",
		Args:        minArgs(1),
		Annotations: tenantRequired,
	}
	var (
		searchTopK int
		searchTags []string
	)
	searchCmd.Flags().IntVar(&searchTopK, "top-k", 0, "number of matches to return")
	searchCmd.Flags().StringSliceVar(&searchTags, "tags", nil, "restrict matches to these tags")
	searchCmd.RunE = func(cmd *cobra.Command, args []string) error {
		a := get()
		matches, err := a.documents.Search(cmd.Context(), document.SearchQuery{
			Query: strings.Join(args, " "),
			TopK:  searchTopK,
			Tags:  searchTags,
		})
		if err != nil {
			return err
		}
		if a.jsonOut {
			return a.printJSON(matches)
		}
		if len(matches) == 0 {
			fmt.Println("no matches")
			return nil
		}
		a.table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "SCORE\tNAME\tID\tSNIPPET")
			for _, m := range matches {
				fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", m.Score, m.Document.Name, m.Document.ID, m.Snippet)
			}
		})
		return nil
	}
	cmd.AddCommand(searchCmd)

	cmd.AddCommand(&cobra.Command{
		Use:         "cleanup",
		Short:       "Remove orphaned index chunks for the active company",
		Args:        maxArgs(0),
		Annotations: tenantRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			report, err := a.documents.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(report)
			}
			fmt.Printf("removed %d orphaned chunk(s), freed %s\n", report.Removed, formatBytes(report.FreedBytes))
			return nil
		},
	})

	return cmd
}

func newChatCommand(get func() *app) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:         "chat <message>...",
		Short:       "Send a chat turn to the active company's bot",
		Args:        minArgs(1),
		Annotations: tenantRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			reply, err := a.conversations.Send(cmd.Context(), conversation.Message{
				Text:      strings.Join(args, " "),
				SessionID: sessionID,
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(reply)
			}
			fmt.Println(reply.Text)
			for _, src := range reply.Sources {
				fmt.Printf("  source: %s (%s, score %.2f)\n", src.Name, src.DocumentID, src.Score)
			}
			a.log.Debug(cmd.Context(), "chat turn complete",
				"session_id", reply.SessionID, "latency_ms", reply.LatencyMS)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing chat session")
	return cmd
}

func newVoiceCommand(get func() *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:         "voice <audio-file>",
		Short:       "Transcribe an audio clip and answer it",
		Args:        exactArgs(1),
		Annotations: tenantRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading audio: %w", err)
			}
			f := conversation.AudioFormat(format)
			if f == "" {
				f = conversation.AudioFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(args[0])), "."))
			}
			res, err := a.conversations.Transcribe(cmd.Context(), conversation.VoiceInput{
				Audio:  base64.StdEncoding.EncodeToString(data),
				Format: f,
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			fmt.Println("transcript:", res.Transcript)
			if res.Reply != "" {
				fmt.Println("reply:", res.Reply)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "audio format (wav|mp3|ogg|m4a); default from file extension")
	return cmd
}

func newImageCommand(get func() *app) *cobra.Command {
	var (
		mime   string
		prompt string
	)
	cmd := &cobra.Command{
		Use:         "image <image-file>",
		Short:       "Describe an image through the vision pipeline",
		Args:        exactArgs(1),
		Annotations: tenantRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading image: %w", err)
			}
			if mime == "" {
				mime = http.DetectContentType(data)
			}
			res, err := a.conversations.Describe(cmd.Context(), conversation.ImageInput{
				Image:  base64.StdEncoding.EncodeToString(data),
				MIME:   mime,
				Prompt: prompt,
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(res)
			}
			fmt.Println(res.Description)
			return nil
		},
	}
	cmd.Flags().StringVar(&mime, "mime", "", "image MIME type (default: sniffed)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "question to ask about the image")
	return cmd
}

func newScheduleCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Agent handoff scheduling",
	}

	slotsCmd := &cobra.Command{
		Use:         "slots",
		Short:       "List bookable agent-handoff windows",
		Args:        maxArgs(0),
		Annotations: tenantRequired,
	}
	var date string
	slotsCmd.Flags().StringVar(&date, "date", "", "day to list, YYYY-MM-DD (default: today)")
	slotsCmd.RunE = func(cmd *cobra.Command, args []string) error {
		a := get()
		res, err := a.schedules.Slots(cmd.Context(), date)
		if err != nil {
			return err
		}
		if a.jsonOut {
			return a.printJSON(map[string]any{
				"slots":    res.Value,
				"degraded": res.Degraded,
				"reason":   res.Reason,
			})
		}
		a.table(func(w *tabwriter.Writer) {
			fmt.Fprintln(w, "ID\tSTART\tEND\tAGENT")
			for _, s := range res.Value {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, formatTime(s.Start), formatTime(s.End), s.Agent)
			}
		})
		fmt.Printf("%d slot(s)%s\n", len(res.Value), degradedSuffix(res.Degraded, res.Reason))
		return nil
	}
	cmd.AddCommand(slotsCmd)

	bookCmd := &cobra.Command{
		Use:         "book <slot-id>",
		Short:       "Book an agent-handoff slot",
		Args:        exactArgs(1),
		Annotations: tenantRequired,
	}
	var (
		subject string
		notes   string
	)
	bookCmd.Flags().StringVar(&subject, "subject", "agent handoff", "booking subject")
	bookCmd.Flags().StringVar(&notes, "notes", "", "notes for the agent")
	bookCmd.RunE = func(cmd *cobra.Command, args []string) error {
		a := get()
		res, err := a.schedules.Book(cmd.Context(), schedule.BookingRequest{
			SlotID:  args[0],
			Subject: subject,
			Notes:   notes,
		})
		if err != nil {
			return err
		}
		if a.jsonOut {
			return a.printJSON(map[string]any{
				"booking":  res.Value,
				"degraded": res.Degraded,
				"reason":   res.Reason,
			})
		}
		b := res.Value
		if res.Degraded {
			fmt.Printf("booking for slot %s deferred: %s\n", b.SlotID, res.Reason)
			return nil
		}
		fmt.Printf("booking %s: slot %s %s\n", b.ID, b.SlotID, b.Status)
		return nil
	}
	cmd.AddCommand(bookCmd)

	return cmd
}

func newAdminCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Platform administration",
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the platform's conversation and document state",
		Args:  maxArgs(0),
	}
	var confirmReset bool
	resetCmd.Flags().BoolVar(&confirmReset, "confirm", false, "confirm the reset")
	resetCmd.RunE = func(cmd *cobra.Command, args []string) error {
		a := get()
		if !confirmReset {
			return usagef("system reset is destructive; re-run with --confirm")
		}
		report, err := a.admin.ResetSystem(cmd.Context())
		if err != nil {
			return err
		}
		if a.jsonOut {
			return a.printJSON(report)
		}
		fmt.Printf("cleared %d conversation(s) and %d document(s)\n",
			report.ClearedConversations, report.ClearedDocuments)
		return nil
	}
	cmd.AddCommand(resetCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Reload company configuration from the platform",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			report, err := a.admin.ReloadCompanies(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(report)
			}
			fmt.Printf("%d company configuration(s) loaded, %d changed\n", report.Companies, report.Changed)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "diag",
		Short: "Show console diagnostics",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			d, err := a.admin.Diagnostics(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(d)
			}
			fmt.Printf("uptime: %s\n", d.Uptime.Round(time.Second))
			fmt.Printf("schedule service: %s\n", d.ScheduleAvailability)
			fmt.Printf("cache entries: %d\n", d.CacheEntries)
			renderHealth(a, d.Health)
			return nil
		},
	})

	return cmd
}

func newHealthCommand(get func() *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check platform service health",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if watch {
				a.health.Watch(cmd.Context(), a.cfg.Health.Interval, func(h health.SystemHealth) {
					renderHealth(a, h)
				})
				return nil
			}
			renderHealth(a, a.health.Check(cmd.Context()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep checking on the configured interval")
	return cmd
}

func newMonitorCommand(get func() *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve the diagnostics endpoint and keep probing health",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if listen == "" {
				listen = a.cfg.Monitor.Listen
			}
			srv := diagnostics.NewServer(listen, a.admin, a.log)
			go a.health.Watch(cmd.Context(), a.cfg.Health.Interval, srv.Record)
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

func newConsoleCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive operator console",
		Args:  maxArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context(), get())
		},
	}
}

func renderHealth(a *app, h health.SystemHealth) {
	if a.jsonOut {
		if err := a.printJSON(h); err != nil {
			fmt.Fprintln(os.Stderr, "perchctl:", err)
		}
		return
	}
	a.table(func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "SERVICE\tCRITICAL\tSTATUS\tLATENCY\tDETAIL")
		for _, svc := range h.Services {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				svc.Name, yesNo(svc.Critical), svc.Status, svc.Latency.Round(time.Millisecond), svc.Detail)
		}
	})
	fmt.Printf("system: %s (checked %s)\n", h.Status, formatTime(h.CheckedAt))
}

// encodePayload keeps readable text as-is and base64-encodes binary
// content, returning the sniffed content type either way.
func encodePayload(data []byte) (content, contentType string) {
	detected := http.DetectContentType(data)
	if strings.HasPrefix(detected, "text/") && utf8.Valid(data) {
		return string(data), detected
	}
	return base64.StdEncoding.EncodeToString(data), detected
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
