package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/ragdesk/internal/notify"
	"github.com/kalambet/ragdesk/internal/transport"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive question and answer session",
	Long: `Interactive question and answer session.

Commands:
  /clear         clear the conversation
  /status        reload backend status
  /docs          list ingested documents
  /notices       list visible notices
  /dismiss [id]  dismiss one notice, or all of them
  /quit          leave the session

Persistent notices stay listed above the prompt until dismissed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return runChat(cmd, a, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().Int("top-k", 0, "chunks to retrieve (default query.top_k)")
	chatCmd.Flags().Bool("rerank", false, "rerank retrieved chunks (default query.use_rerank)")
}

func runChat(cmd *cobra.Command, a *app, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	opts := queryOptions(cmd, a.cfg)

	a.store.Initialize(ctx)
	if a.store.IsSystemOnline() {
		fmt.Fprintf(out, "%s %d documents loaded. Type /quit to leave.\n",
			colorize(colorGreen, "Connected."), a.store.TotalDocuments())
	} else {
		fmt.Fprintln(out, colorize(colorYellow, "Backend is not reachable; questions will fail until it is."))
	}
	if !a.store.HasDocuments() {
		fmt.Fprintln(out, "No documents yet. Use `ragdesk upload <file>` to add some.")
	}

	sc := bufio.NewScanner(in)
	for {
		listNotices(out, a.notices, true)
		fmt.Fprint(out, colorize(colorGreen, "you> "))
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if cmdName, arg, _ := strings.Cut(line, " "); cmdName == "/dismiss" {
			dismissNotices(out, a.notices, strings.TrimSpace(arg))
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil
		case "/clear":
			a.store.ClearMessages(ctx)
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		case "/status":
			if st, err := a.store.LoadSystemStatus(ctx); err == nil {
				fmt.Fprintf(out, "%s: %d documents, %d chunks\n", st.Status, st.DocumentCount, st.ChunkCount)
			}
			continue
		case "/notices":
			if !listNotices(out, a.notices, false) {
				fmt.Fprintln(out, "No notices.")
			}
			continue
		case "/docs":
			if catalog, err := a.store.LoadDocuments(ctx); err == nil {
				printCatalog(out, catalog)
			}
			continue
		}
		if strings.HasPrefix(line, "/") {
			fmt.Fprintf(out, "Unknown command %s\n", line)
			continue
		}

		resp, err := a.store.SendMessage(ctx, line, opts)
		if err != nil {
			// Backend failures were already shown as notices.
			if _, ok := transport.AsError(err); !ok {
				printError("%v", err)
			}
			continue
		}
		fmt.Fprint(out, colorize(colorCyan, "assistant> "))
		printAnswer(out, resp)
		fmt.Fprintln(out)
	}
}

// listNotices prints the visible notices, only the persistent ones when
// persistentOnly is set. It reports whether anything was printed.
func listNotices(out io.Writer, c *notify.Center, persistentOnly bool) bool {
	if c == nil {
		return false
	}
	printed := false
	for _, n := range c.Active() {
		if persistentOnly && !n.Persistent {
			continue
		}
		text := n.Message
		if n.Title != "" {
			text = n.Title + ": " + n.Message
		}
		tint := colorYellow
		if n.Persistent {
			tint = colorRed
		}
		fmt.Fprintf(out, "%s %s\n", colorize(tint, fmt.Sprintf("[%d]", n.ID)), text)
		printed = true
	}
	return printed
}

func dismissNotices(out io.Writer, c *notify.Center, arg string) {
	if c == nil {
		fmt.Fprintln(out, "No notices.")
		return
	}
	if arg == "" {
		c.DismissAll()
		fmt.Fprintln(out, "Notices dismissed.")
		return
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		fmt.Fprintf(out, "Invalid notice id %q\n", arg)
		return
	}
	if !c.Dismiss(id) {
		fmt.Fprintf(out, "Notice %d is not visible\n", id)
		return
	}
	fmt.Fprintf(out, "Notice %d dismissed.\n", id)
}
