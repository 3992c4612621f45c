package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/internal/domain/conversation"
	"github.com/parakeetlabs/perch/internal/domain/document"
	"github.com/parakeetlabs/perch/internal/domain/schedule"
)

// runConsole is the interactive loop: known commands are dispatched,
// anything else goes to the active company's bot as a chat turn. The
// chat session resets whenever the operator switches company.
func runConsole(ctx context.Context, a *app) error {
	var chatSession string
	a.session.Subscribe("conversation", func(context.Context, company.ID) error {
		chatSession = ""
		return nil
	})

	fmt.Println(`perch console — "help" lists commands, "exit" leaves`)
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		active := "-"
		if id := a.session.ActiveOrEmpty(); id != "" {
			active = id.String()
		}
		fmt.Printf("perch:%s> ", active)
		if !sc.Scan() {
			fmt.Println()
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "exit", "quit":
			return nil
		case "help":
			consoleHelp()
		case "companies":
			consoleCompanies(ctx, a)
		case "use":
			if len(fields) != 2 {
				fmt.Println("usage: use <company-id>")
				continue
			}
			consoleUse(ctx, a, fields[1])
		case "status":
			consoleStatus(ctx, a)
		case "docs":
			consoleDocs(ctx, a)
		case "search":
			if len(fields) < 2 {
				fmt.Println("usage: search <query>")
				continue
			}
			consoleSearch(ctx, a, strings.Join(fields[1:], " "))
		case "slots":
			consoleSlots(ctx, a)
		case "book":
			if len(fields) < 2 {
				fmt.Println("usage: book <slot-id> [subject]")
				continue
			}
			consoleBook(ctx, a, fields[1], strings.Join(fields[2:], " "))
		case "health":
			renderHealth(a, a.health.Check(ctx))
		case "diag":
			consoleDiag(ctx, a)
		default:
			chatSession = consoleChat(ctx, a, line, chatSession)
		}
	}
}

func consoleHelp() {
	fmt.Print(`commands:
  companies            list companies
  use <company-id>     switch the active company
  status               status card for the active company
  docs                 list knowledge base documents
  search <query>       search the knowledge base
  slots                list agent-handoff windows
  book <slot-id> [subject]
                       book a handoff slot
  health               check platform health
  diag                 console diagnostics
  exit                 leave the console

anything else is sent to the bot as a chat message.
`)
}

func consoleChat(ctx context.Context, a *app, text, sessionID string) string {
	reply, err := a.conversations.Send(ctx, conversation.Message{Text: text, SessionID: sessionID})
	if err != nil {
		fmt.Println("error:", err)
		return sessionID
	}
	fmt.Println(reply.Text)
	for _, src := range reply.Sources {
		fmt.Printf("  source: %s (%s, score %.2f)\n", src.Name, src.DocumentID, src.Score)
	}
	return reply.SessionID
}

func consoleUse(ctx context.Context, a *app, id string) {
	warnings, err := a.companies.SelectAndReport(ctx, company.ID(id))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if warnings != nil {
		fmt.Println("warning:", warnings)
	}
	fmt.Println("active company:", id)
}

func consoleCompanies(ctx context.Context, a *app) {
	list, err := a.companies.List(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	active := a.session.ActiveOrEmpty()
	for _, c := range list {
		marker := "  "
		if c.ID == active {
			marker = "* "
		}
		fmt.Printf("%s%s\t%s (%s)\n", marker, c.ID, c.Name, c.Plan)
	}
}

func consoleStatus(ctx context.Context, a *app) {
	id := a.session.ActiveOrEmpty()
	st, meta, err := a.companies.Status(ctx, id)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("%s: %d documents, %d conversations today, indexed %s (%s)\n",
		st.CompanyID, st.DocumentCount, st.ConversationsToday, formatTime(st.IndexedAt), cacheNote(meta))
	if len(st.Flags) > 0 {
		fmt.Println("flags:", strings.Join(st.Flags, ", "))
	}
}

func consoleDocs(ctx context.Context, a *app) {
	docs, err := a.documents.List(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(docs) == 0 {
		fmt.Println("knowledge base is empty")
		return
	}
	a.table(func(w *tabwriter.Writer) {
		for _, d := range docs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name, formatBytes(d.SizeBytes), yesNo(d.Indexed))
		}
	})
}

func consoleSearch(ctx context.Context, a *app, query string) {
	matches, err := a.documents.Search(ctx, document.SearchQuery{Query: query})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(matches) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, m := range matches {
		fmt.Printf("%.3f  %s: %s\n", m.Score, m.Document.Name, m.Snippet)
	}
}

func consoleSlots(ctx context.Context, a *app) {
	res, err := a.schedules.Slots(ctx, "")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, s := range res.Value {
		fmt.Printf("%s  %s - %s  %s\n", s.ID, formatTime(s.Start), formatTime(s.End), s.Agent)
	}
	fmt.Printf("%d slot(s)%s\n", len(res.Value), degradedSuffix(res.Degraded, res.Reason))
}

func consoleBook(ctx context.Context, a *app, slotID, subject string) {
	if subject == "" {
		subject = "agent handoff"
	}
	res, err := a.schedules.Book(ctx, schedule.BookingRequest{SlotID: slotID, Subject: subject})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	b := res.Value
	if res.Degraded {
		fmt.Printf("booking for slot %s deferred: %s\n", b.SlotID, res.Reason)
		return
	}
	fmt.Printf("booking %s: slot %s %s\n", b.ID, b.SlotID, b.Status)
}

func consoleDiag(ctx context.Context, a *app) {
	d, err := a.admin.Diagnostics(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("uptime %s, schedule service %s, %d cache entries, system %s\n",
		d.Uptime.Round(time.Second), d.ScheduleAvailability, d.CacheEntries, d.Health.Status)
}
