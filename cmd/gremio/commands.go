package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/gremio/internal/config"
	"github.com/hurttlocker/gremio/internal/extract"
	"github.com/hurttlocker/gremio/internal/ingest"
	"github.com/hurttlocker/gremio/internal/model"
	"github.com/hurttlocker/gremio/internal/store"
)

var (
	saveFlag    bool
	sectionFlag string
	applyFlag   bool
	limitFlag   int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tracked unions",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var investigateCmd = &cobra.Command{
	Use:   "investigate <name>",
	Short: "Research a union profile by name",
	Long: `Researches leadership, headquarters and the current year's wage agreements
of a union with a search-grounded model. A union that is already tracked is
reconciled into its stored record (events are kept). Nothing is stored
without --save.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvestigate,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <slug>",
	Short: "Re-investigate a tracked union, or one section of it",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefresh,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Read a news link and fold its findings into the matching union",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var newsCmd = &cobra.Command{
	Use:   "news <file>",
	Short: "Analyze saved feed items (.json or .yaml) for union actions and agreements",
	Long: `Classifies up to 20 feed items and prints one suggestion per relevant item.
With --save every suggestion is accepted: items about a tracked union are
merged into it, unknown unions are investigated and added.`,
	Args: cobra.ExactArgs(1),
	RunE: runNews,
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Ask the assistant about the tracked unions",
	Long: `Sends a question to the assistant with a summary of every tracked union.
When the assistant proposes an update it is printed; --apply executes it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

var logosCmd = &cobra.Command{
	Use:   "logos <slug>",
	Short: "Search logo image URLs for a tracked union",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogos,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <slug>",
	Short: "Delete a tracked union",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var historyCmd = &cobra.Command{
	Use:   "history <slug>",
	Short: "Show the change log of a union (sqlite store only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics (sqlite store only)",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved config and check the application config",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	for _, c := range []*cobra.Command{investigateCmd, refreshCmd, analyzeCmd, newsCmd} {
		c.Flags().BoolVar(&saveFlag, "save", false, "Persist the result")
	}
	refreshCmd.Flags().StringVar(&sectionFlag, "section", "", "Only refresh comisionDirectiva, paritarias or acciones")
	chatCmd.Flags().BoolVar(&applyFlag, "apply", false, "Execute the update the assistant proposes")
	historyCmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum events to show (0 = all)")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	entities := a.in.View().Entities()
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, entities)
	}
	if len(entities) == 0 {
		fmt.Fprintln(out, "No unions tracked yet. Use 'gremio investigate <name> --save' to add one.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tLEADER\tACTIONS\tAGREEMENTS")
	for _, e := range entities {
		leader := "-"
		if len(e.Leadership) > 0 {
			leader = e.Leadership[0].Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", e.Slug, e.Name, leader, len(e.Events), len(e.Agreements))
	}
	return tw.Flush()
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.in.Investigate(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	return finishDraft(cmd, a, d)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	var d *ingest.Draft
	if sectionFlag != "" {
		section, err := ingest.ParseSection(sectionFlag)
		if err != nil {
			return err
		}
		d, err = a.in.RefreshSection(cmd.Context(), args[0], section)
		if err != nil {
			return err
		}
	} else if d, err = a.in.Refresh(cmd.Context(), args[0]); err != nil {
		return err
	}
	return finishDraft(cmd, a, d)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.in.AnalyzeLink(cmd.Context(), args[0])
	if err != nil {
		var failed *model.AnalysisFailedError
		if errors.As(err, &failed) {
			return fmt.Errorf("the model could not analyze the link: %s", failed.Message)
		}
		return err
	}
	return finishDraft(cmd, a, d)
}

func runNews(cmd *cobra.Command, args []string) error {
	items, err := ingest.ReadNewsItems(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No news items found.")
		return nil
	}

	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	analyses, skipped, err := a.svc.AnalyzeNews(cmd.Context(), items)
	if err != nil {
		return err
	}
	for _, s := range skipped {
		appLogger().Sugar().Warnf("skipped news suggestion: %v", s)
	}

	if !saveFlag {
		if jsonOutput {
			return printJSON(out, analyses)
		}
		if len(analyses) == 0 {
			fmt.Fprintln(out, "No relevant items.")
		}
		for i, an := range analyses {
			fmt.Fprintf(out, "%d. [%s] %s (%s)\n", i+1, an.Kind, an.Match.Name, an.Match.Slug)
			describeAnalysis(out, an)
		}
		return nil
	}

	var saved int
	for _, an := range analyses {
		d, err := a.in.AcceptSuggestion(cmd.Context(), an)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", an.Match.Name, err)
			continue
		}
		if err := a.in.Save(cmd.Context(), d.Entity); err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", d.Entity.Name, err)
			continue
		}
		saved++
		fmt.Fprintf(out, "✓ %s: %d added, %d duplicates\n", d.Entity.Name, d.Added, d.Skipped)
		for _, w := range d.Warnings {
			fmt.Fprintf(out, "  warning: %s\n", w)
		}
	}
	fmt.Fprintf(out, "Saved %d of %d suggestions.\n", saved, len(analyses))
	return nil
}

func describeAnalysis(w io.Writer, an *extract.Analysis) {
	for _, ev := range an.Events {
		fmt.Fprintf(w, "   %s  %s: %s\n", ev.Date, ev.Category, ev.Title)
	}
	if an.Agreement != nil {
		fmt.Fprintf(w, "   %s: %s\n", an.Agreement.Period, an.Agreement.Increase)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	reply, err := a.svc.Chat(cmd.Context(), strings.Join(args, " "), a.in.View().Entities())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput && !applyFlag {
		return printJSON(out, reply)
	}
	fmt.Fprintln(out, reply.Reply)
	if reply.Action == nil {
		return nil
	}
	fmt.Fprintf(out, "Proposed: set %s of %s to %v\n", reply.Action.Field, reply.Action.Slug, reply.Action.Value)
	if !applyFlag {
		fmt.Fprintln(out, "Run again with --apply to execute it.")
		return nil
	}
	e, err := a.in.ApplyChatAction(cmd.Context(), reply.Action)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated %s.\n", e.Slug)
	return nil
}

func runLogos(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	urls, err := a.in.LogoCandidates(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, urls)
	}
	if len(urls) == 0 {
		fmt.Fprintln(out, "No logos found.")
	}
	for _, u := range urls {
		fmt.Fprintln(out, u)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	slug := args[0]
	if _, ok := a.in.View().Get(slug); !ok {
		return fmt.Errorf("%s: %w", slug, store.ErrNotFound)
	}
	if err := a.in.Delete(cmd.Context(), slug); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", slug)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	sqlStore, ok := a.backend.(*store.SQLiteStore)
	if !ok {
		return fmt.Errorf("history requires the sqlite store (current: %s)", a.cfg.Store.Value)
	}
	events, err := sqlStore.History(cmd.Context(), args[0], limitFlag)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, events)
	}
	if len(events) == 0 {
		fmt.Fprintf(out, "No history for %s.\n", args[0])
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(out, "%s  %-8s %s\n", ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.EventType, ev.Slug)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	sqlStore, ok := a.backend.(*store.SQLiteStore)
	if !ok {
		return fmt.Errorf("stats requires the sqlite store (current: %s)", a.cfg.Store.Value)
	}
	stats, err := sqlStore.Stats(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, stats)
	}
	fmt.Fprintf(out, "Unions:   %d\n", stats.EntityCount)
	fmt.Fprintf(out, "Changes:  %d\n", stats.EventCount)
	fmt.Fprintf(out, "DB size:  %d bytes\n", stats.DBSizeBytes)
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	app := a.in.AppConfig()
	problems := app.Check()
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]interface{}{
			"resolved": a.cfg.Redacted(),
			"problems": problems,
		})
	}

	r := a.cfg.Redacted()
	fmt.Fprintf(out, "config file:  %s\n", r.ConfigPath)
	for _, row := range []struct {
		key string
		val config.ResolvedValue
	}{
		{"store", r.Store},
		{"db_path", r.DBPath},
		{"firebase_url", r.FirebaseURL},
		{"llm", r.LLMProvider},
		{"llm_key", r.APIKeyForProvider(r.LLMProvider.Value)},
		{"max_retries", r.LLMMaxRetries},
		{"timeout", r.LLMTimeout},
		{"cooldown", r.BatchCooldown},
	} {
		fmt.Fprintf(out, "%-13s %s\n", row.key+":", describeValue(row.val))
	}
	fmt.Fprintf(out, "news sources: %d, custom fields: %d\n", len(app.NewsSources), len(app.CustomFields))
	if len(problems) == 0 {
		fmt.Fprintln(out, "app config:   ok")
		return nil
	}
	fmt.Fprintln(out, "app config problems:")
	for _, p := range problems {
		fmt.Fprintf(out, "  - %s\n", p)
	}
	return nil
}

func describeValue(v config.ResolvedValue) string {
	if strings.TrimSpace(v.Value) == "" {
		return "(unset)"
	}
	return fmt.Sprintf("%s (%s)", v.Value, v.Source)
}

// finishDraft prints d and saves it when --save is set.
func finishDraft(cmd *cobra.Command, a *app, d *ingest.Draft) error {
	out := cmd.OutOrStdout()
	if saveFlag {
		if err := a.in.Save(cmd.Context(), d.Entity); err != nil {
			return err
		}
	}
	if jsonOutput {
		return printJSON(out, d)
	}

	e := d.Entity
	state := "updated"
	if d.IsNew {
		state = "new"
	}
	fmt.Fprintf(out, "%s (%s) [%s]\n", e.Name, e.Slug, state)
	fmt.Fprintf(out, "  Sede:    %s\n", e.Profile.Headquarters)
	if e.Profile.Website != "" {
		fmt.Fprintf(out, "  Web:     %s\n", e.Profile.Website)
	}
	for _, l := range e.Leadership {
		fmt.Fprintf(out, "  %s: %s\n", l.Role, l.Name)
	}
	fmt.Fprintf(out, "  Acciones: %d, paritarias: %d\n", len(e.Events), len(e.Agreements))
	if d.Added > 0 || d.Skipped > 0 {
		fmt.Fprintf(out, "  Merged: %d added, %d duplicates\n", d.Added, d.Skipped)
	}
	for _, w := range d.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	if saveFlag {
		fmt.Fprintln(out, "Saved.")
	} else {
		fmt.Fprintln(out, "Not saved (use --save).")
	}
	return nil
}
