package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/ragdesk/internal/config"
	"github.com/kalambet/ragdesk/internal/session"
	"github.com/kalambet/ragdesk/internal/storage"
	"github.com/kalambet/ragdesk/internal/transport"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the ingested documents",
	Long: `Ask a question against the ingested documents.

Examples:
  ragdesk ask "What does the onboarding guide say about VPN access?"
  ragdesk ask --top-k 10 --rerank "Summarize the release process"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.store.SendMessage(cmd.Context(), strings.Join(args, " "), queryOptions(cmd, a.cfg))
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), resp)
		}
		printAnswer(cmd.OutOrStdout(), resp)
		return nil
	},
}

func init() {
	askCmd.Flags().Int("top-k", 0, "chunks to retrieve (default query.top_k)")
	askCmd.Flags().Bool("rerank", false, "rerank retrieved chunks (default query.use_rerank)")
	askCmd.Flags().Bool("json", false, "print the raw response as JSON")
}

func queryOptions(cmd *cobra.Command, cfg config.Config) session.QueryOptions {
	opts := session.QueryOptions{TopK: cfg.Query.TopK, UseRerank: cfg.Query.UseRerank}
	if k, _ := cmd.Flags().GetInt("top-k"); k > 0 {
		opts.TopK = k
	}
	if cmd.Flags().Changed("rerank") {
		opts.UseRerank, _ = cmd.Flags().GetBool("rerank")
	}
	return opts
}

func printAnswer(w io.Writer, resp *session.QueryResponse) {
	fmt.Fprintln(w, resp.Answer)
	if len(resp.RetrievedChunks) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, colorize(colorBold, "Sources"))
		for i, c := range resp.RetrievedChunks {
			fmt.Fprintf(w, "  %d. %s [score: %.3f]\n", i+1, colorize(colorCyan, c.Source), c.Score)
		}
	}
	fmt.Fprintf(w, "\nconfidence %.0f%%, %.2fs\n", resp.Confidence*100, resp.ResponseTime)
}

// --- batch ---

var batchCmd = &cobra.Command{
	Use:   "batch [question...]",
	Short: "Ask several questions in one request",
	Long: `Ask several questions in one request. The conversation log is not touched.

Examples:
  ragdesk batch "What is X?" "What is Y?"
  ragdesk batch --file questions.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		questions := append([]string(nil), args...)
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening questions file: %w", err)
			}
			defer f.Close()
			fromFile, err := readQuestions(f)
			if err != nil {
				return fmt.Errorf("reading questions file: %w", err)
			}
			questions = append(questions, fromFile...)
		}
		if len(questions) == 0 {
			return errors.New("at least one question is required (arguments or --file)")
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		topK, _ := cmd.Flags().GetInt("top-k")
		if topK <= 0 {
			topK = a.cfg.Query.TopK
		}
		resp, err := a.store.BatchQuery(cmd.Context(), questions, session.BatchOptions{TopK: topK})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for i, r := range resp.Results {
			fmt.Fprintf(w, "%s %s\n", colorize(colorBold, fmt.Sprintf("Q%d:", i+1)), r.Question)
			printAnswer(w, &r)
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "total %.2fs\n", resp.TotalTime)
		return nil
	},
}

func init() {
	batchCmd.Flags().String("file", "", "file with one question per line")
	batchCmd.Flags().Int("top-k", 0, "chunks to retrieve per question (default query.top_k)")
}

// readQuestions returns the non-blank lines of r. Lines starting with # are
// skipped.
func readQuestions(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload documents (.pdf, .txt, .md) to the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		quiet, _ := cmd.Flags().GetBool("quiet")
		var failed int
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				printError("reading %s: %v", path, err)
				failed++
				continue
			}

			name := filepath.Base(path)
			var obs transport.ProgressObserver
			if !quiet {
				obs = progressPrinter(cmd.ErrOrStderr(), name)
			}
			res, err := a.store.UploadDocument(cmd.Context(), transport.File{Name: name, Data: data}, obs)
			if !quiet {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				failed++
				continue
			}
			printSuccess("Uploaded %s as %s (%d chunks)", res.Filename, res.DocumentID, res.ChunkCount)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(args))
		}
		printStatus("Documents", "%d", a.store.TotalDocuments())
		return nil
	},
}

func init() {
	uploadCmd.Flags().BoolP("quiet", "q", false, "do not show upload progress")
}

func progressPrinter(w io.Writer, name string) transport.ProgressObserver {
	return transport.ProgressFunc(func(percent int) {
		fmt.Fprintf(w, "\r%s %s %3d%%", colorize(colorCyan, "→"), name, percent)
	})
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Inspect and manage ingested documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		catalog, err := a.store.LoadDocuments(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), catalog)
		}
		printCatalog(cmd.OutOrStdout(), catalog)
		return nil
	},
}

func printCatalog(w io.Writer, catalog session.DocumentCatalog) {
	if len(catalog.Documents) == 0 {
		fmt.Fprintln(w, "No documents found.")
		return
	}
	for _, d := range catalog.Documents {
		fmt.Fprintf(w, "%s  %-30s  %4d chunks  %s\n",
			colorize(colorCyan, d.ID),
			d.Source,
			d.ChunkCount,
			d.CreatedAt,
		)
	}
	fmt.Fprintf(w, "\n%d documents, %d chunks\n", catalog.TotalDocuments, catalog.TotalChunks)
}

var docsChunksCmd = &cobra.Command{
	Use:   "chunks <document-id>",
	Short: "Show the chunks of one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		chunks, err := a.store.LoadDocumentChunks(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if chunks.TotalChunks == 0 {
			fmt.Fprintln(w, "No chunks found.")
			return nil
		}
		for _, c := range chunks.Chunks {
			fmt.Fprintf(w, "\n%s (%d chars)\n", colorize(colorBold, fmt.Sprintf("Chunk %d", c.ChunkIndex)), c.ChunkSize)
			fmt.Fprintf(w, "  %s\n", truncate(c.Content, 500))
		}
		return nil
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.DeleteDocument(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess("Deleted document %s", args[0])
		return nil
	},
}

var docsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every document in the knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL documents. Use --confirm to proceed.")
			return nil
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.ClearDocuments(cmd.Context()); err != nil {
			return err
		}
		printSuccess("Knowledge base cleared")
		return nil
	},
}

func init() {
	docsListCmd.Flags().Bool("json", false, "print the catalog as JSON")
	docsClearCmd.Flags().Bool("confirm", false, "confirm deletion")
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsChunksCmd)
	docsCmd.AddCommand(docsDeleteCmd)
	docsCmd.AddCommand(docsClearCmd)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		printStatus("Backend", "%s", a.cfg.API.BaseURL)
		conn := a.client.CheckConnection(cmd.Context())
		if !conn.Connected {
			printStatus("Connection", "unreachable (%s)", conn.Error)
			return nil
		}
		printStatus("Connection", "ok (HTTP %d)", conn.Status)

		st, err := a.store.LoadSystemStatus(cmd.Context())
		if err != nil {
			printStatus("Status", "%s", session.StatusError)
			return nil
		}
		printSystemStatus(st)

		if a.archive != nil {
			printStatus("History", "%s", a.cfg.Storage.HistoryPath())
		} else {
			printStatus("History", "disabled")
		}
		return nil
	},
}

func printSystemStatus(st session.SystemStatus) {
	printStatus("Status", "%s", st.Status)
	printStatus("Documents", "%d", st.DocumentCount)
	printStatus("Chunks", "%d", st.ChunkCount)
	models := make([]string, 0, len(st.ModelStatus))
	for k := range st.ModelStatus {
		models = append(models, k)
	}
	sort.Strings(models)
	for _, k := range models {
		printStatus(k, "%v", st.ModelStatus[k])
	}
	if st.MemoryUsage > 0 {
		printStatus("Memory", "%s", memoryLabel(st.MemoryUsage))
	}
}

// memoryLabel renders the backend's memory usage rate. Rates up to 1 are
// fractions; larger values are already percentages.
func memoryLabel(rate float64) string {
	if rate <= 1 {
		rate *= 100
	}
	return fmt.Sprintf("%.1f%%", rate)
}

// --- health / test-services ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Call the backend health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		h, err := a.store.CheckHealth(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", h.Service, h.Version, h.Status)
		return nil
	},
}

var testServicesCmd = &cobra.Command{
	Use:   "test-services",
	Short: "Ask the backend to probe its embedding and LLM services",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		sc, err := a.store.TestServices(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "embedding: %s\n", upDown(sc.EmbeddingService))
		fmt.Fprintf(w, "llm:       %s\n", upDown(sc.LLMService))
		fmt.Fprintf(w, "overall:   %s\n", upDown(sc.OverallStatus))
		if !sc.OverallStatus {
			return errors.New("backend services are degraded")
		}
		return nil
	},
}

func upDown(ok bool) string {
	if ok {
		return colorize(colorGreen, "up")
	}
	return colorize(colorRed, "down")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse archived conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.archive == nil {
			return errHistoryDisabled
		}

		limit, _ := cmd.Flags().GetInt("limit")
		convs, err := a.archive.ListConversations(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("listing conversations: %w", err)
		}

		w := cmd.OutOrStdout()
		if len(convs) == 0 {
			fmt.Fprintln(w, "No conversations found.")
			return nil
		}
		for _, c := range convs {
			fmt.Fprintf(w, "%s  %s  %d messages\n",
				colorize(colorCyan, c.ID),
				c.UpdatedAt.Local().Format("2006-01-02 15:04"),
				c.MessageCount,
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Show one archived conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.archive == nil {
			return errHistoryDisabled
		}

		msgs, err := a.archive.ListMessages(cmd.Context(), args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("conversation %s not found", args[0])
		}
		if err != nil {
			return fmt.Errorf("loading conversation: %w", err)
		}

		w := cmd.OutOrStdout()
		for _, m := range msgs {
			printMessage(w, m)
		}
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of conversations to list")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}

func printMessage(w io.Writer, m session.Message) {
	var label string
	switch m.Type {
	case session.MessageUser:
		label = colorize(colorGreen, "you")
	case session.MessageAssistant:
		label = colorize(colorCyan, "assistant")
	default:
		label = colorize(colorRed, string(m.Type))
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.Local().Format("15:04:05"), label, m.Content)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nValid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
