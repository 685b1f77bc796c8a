package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/pal/internal/analytics"
	"github.com/kalambet/pal/internal/config"
	"github.com/kalambet/pal/internal/domain"
	"github.com/kalambet/pal/internal/history"
	"github.com/kalambet/pal/internal/profile"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message to the assistant",
	Long: `Send a message to the assistant. The reply draws on your profile and
past conversations, and the exchange is remembered.

Examples:
  pal chat "help me plan a study schedule for my exam"
  pal chat what should I cook for the kids tonight`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/chat", map[string]any{"message": message})
		if err != nil {
			return err
		}

		var reply struct {
			Response string `json:"response"`
			Domain   string `json:"domain"`
			Saved    bool   `json:"saved"`
		}
		if err := decodeJSON(resp, &reply); err != nil {
			return err
		}

		fmt.Println(reply.Response)
		fmt.Fprintln(os.Stderr, domainBadge(reply.Domain))
		if !reply.Saved {
			printWarning("This exchange could not be saved to your history")
		}
		return nil
	},
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage your profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		p, err := fetchProfile(cmd)
		if err != nil {
			return err
		}
		if p == nil {
			printWarning("No profile saved yet. Create one with 'pal profile edit'.")
			return nil
		}
		return encodeProfile(os.Stdout, *p, format)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field",
	Long: `Set a profile field. Known fields: ` + strings.Join(profile.FieldNames(), ", ") + `.
help_areas takes a comma-separated list.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/api/profile", map[string]any{key: value})
		if err != nil {
			return err
		}

		var saved profile.Profile
		if err := decodeJSON(resp, &saved); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete your profile. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/api/profile")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Profile deleted")
		return nil
	},
}

var profileEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the profile in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "vi"
		}

		p, err := fetchProfile(cmd)
		if err != nil {
			return err
		}
		if p == nil {
			p = &profile.Profile{HelpAreas: []string{}}
		}

		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}

		tmpFile, err := os.CreateTemp("", "pal-profile-*.json")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		tmpPath := tmpFile.Name()
		defer os.Remove(tmpPath)

		if _, err := tmpFile.Write(data); err != nil {
			tmpFile.Close()
			return err
		}
		tmpFile.Close()

		editorCmd := exec.Command(editor, tmpPath)
		editorCmd.Stdin = os.Stdin
		editorCmd.Stdout = os.Stdout
		editorCmd.Stderr = os.Stderr
		if err := editorCmd.Run(); err != nil {
			return fmt.Errorf("editor exited with error: %w", err)
		}

		edited, err := os.ReadFile(tmpPath)
		if err != nil {
			return err
		}

		updated, err := decodeProfile(edited, "json")
		if err != nil {
			return err
		}
		return saveProfile(cmd, updated, "Profile updated")
	},
}

var profileExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the profile to a file or stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		format, _ := cmd.Flags().GetString("format")
		format = formatFor(output, format)

		p, err := fetchProfile(cmd)
		if err != nil {
			return err
		}
		if p == nil {
			return errors.New("no profile saved")
		}

		if output == "" {
			return encodeProfile(os.Stdout, *p, format)
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		if err := encodeProfile(f, *p, format); err != nil {
			return err
		}
		printSuccess("Profile exported to %s", output)
		return nil
	},
}

var profileImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the profile with one read from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		path := args[0]

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		p, err := decodeProfile(data, formatFor(path, format))
		if err != nil {
			return err
		}
		return saveProfile(cmd, p, "Profile imported from "+path)
	},
}

func init() {
	profileShowCmd.Flags().String("format", "json", "output format: json or yaml")
	profileDeleteCmd.Flags().Bool("confirm", false, "confirm profile deletion")
	profileExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	profileExportCmd.Flags().String("format", "", "json or yaml (default: from file extension, else json)")
	profileImportCmd.Flags().String("format", "", "json or yaml (default: from file extension, else json)")

	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileDeleteCmd)
	profileCmd.AddCommand(profileEditCmd)
	profileCmd.AddCommand(profileExportCmd)
	profileCmd.AddCommand(profileImportCmd)
}

func fetchProfile(cmd *cobra.Command) (*profile.Profile, error) {
	client, err := newAPIClient()
	if err != nil {
		return nil, err
	}
	resp, err := client.get(cmd.Context(), "/api/profile")
	if err != nil {
		return nil, err
	}
	var p *profile.Profile
	if err := decodeJSON(resp, &p); err != nil {
		return nil, err
	}
	return p, nil
}

func saveProfile(cmd *cobra.Command, p profile.Profile, done string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.put(cmd.Context(), "/api/profile", p)
	if err != nil {
		return err
	}
	var saved profile.Profile
	if err := decodeJSON(resp, &saved); err != nil {
		return err
	}
	printSuccess("%s", done)
	return nil
}

// formatFor picks the profile file format: the explicit flag, else the file
// extension, else JSON.
func formatFor(path, flag string) string {
	if flag != "" {
		return strings.ToLower(flag)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func encodeProfile(w io.Writer, p profile.Profile, format string) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(p)
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func decodeProfile(data []byte, format string) (profile.Profile, error) {
	var p profile.Profile
	switch format {
	case "json", "":
		if err := json.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("invalid JSON: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return p, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		return p, fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
	return p, nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse conversation history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/api/conversations?recent=%d", limit))
		if err != nil {
			return err
		}

		var records []history.Record
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}
		printRecords(os.Stdout, records)
		return nil
	},
}

var historyRecallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Find past conversations that share keywords with the query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/api/conversations/relevant?q=%s&limit=%d", url.QueryEscape(query), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var records []history.Record
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}
		printRecords(os.Stdout, records)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all conversation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL conversation history. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Clearing conversation history...")
		resp, err := client.delete(cmd.Context(), "/api/conversations")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Conversation history cleared")
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 10, "number of conversations to list")
	historyRecallCmd.Flags().Int("limit", 5, "maximum number of results")
	historyClearCmd.Flags().Bool("confirm", false, "confirm deletion")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyRecallCmd)
	historyCmd.AddCommand(historyClearCmd)
}

func printRecords(w io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No conversations found.")
		return
	}
	for _, r := range records {
		when := r.Date
		if !r.Timestamp.IsZero() {
			when = r.Timestamp.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s %s\n", colorize(faintStyle, when), domainBadge(r.Domain))
		fmt.Fprintf(w, "  %s %s\n", colorize(boldStyle, "you:"), shorten(r.User, 100))
		fmt.Fprintf(w, "  %s %s\n", colorize(boldStyle, "pal:"), shorten(r.Assistant, 100))
	}
}

func shorten(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// --- stats & insights ---

// statsView mirrors the /api/stats response.
type statsView struct {
	analytics.Stats
	Breakdown     []analytics.DomainCount `json:"breakdown"`
	DailyActivity []analytics.DateCount   `json:"daily_activity"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show usage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/stats")
		if err != nil {
			return err
		}
		var s statsView
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		printStats(os.Stdout, s)
		return nil
	},
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show what your conversations say about how you ask",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/insights")
		if err != nil {
			return err
		}
		var in analytics.Insights
		if err := decodeJSON(resp, &in); err != nil {
			return err
		}
		printInsights(os.Stdout, in)
		return nil
	},
}

func printStats(w io.Writer, s statsView) {
	if s.TotalConversations == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}
	fmt.Fprintf(w, "%s %d\n", colorize(boldStyle, "Conversations:"), s.TotalConversations)
	fmt.Fprintf(w, "%s %d\n", colorize(boldStyle, "Words exchanged:"), s.TotalWords)
	fmt.Fprintf(w, "%s %d (%.1f conversations per day)\n", colorize(boldStyle, "Active days:"), len(s.Dates), s.AvgPerDay)
	if s.LastChat != "" {
		fmt.Fprintf(w, "%s %s\n", colorize(boldStyle, "Last chat:"), s.LastChat)
	}

	fmt.Fprintln(w, colorize(boldStyle, "\nDomains:"))
	for _, d := range s.Breakdown {
		fmt.Fprintf(w, "  %-16s %3d  %5.1f%%\n", domainBadge(d.Domain), d.Count, d.Percent)
	}

	if len(s.DailyActivity) > 0 {
		fmt.Fprintln(w, colorize(boldStyle, "\nRecent activity:"))
		for _, d := range s.DailyActivity {
			fmt.Fprintf(w, "  %s %s %d\n", d.Date, strings.Repeat("█", d.Count), d.Count)
		}
	}
}

func printInsights(w io.Writer, in analytics.Insights) {
	if len(in.TopWords) == 0 && in.Questions == 0 {
		fmt.Fprintln(w, "Not enough conversations for insights yet.")
		return
	}

	if in.TopDomain != "" {
		fmt.Fprintf(w, "%s %s\n", colorize(boldStyle, "Most discussed:"), domainBadge(in.TopDomain))
	}
	fmt.Fprintf(w, "%s %d (%.1f%% of messages)\n", colorize(boldStyle, "Questions asked:"), in.Questions, in.QuestionPercentage)

	if len(in.QuestionStarters) > 0 {
		starters := make([]string, len(in.QuestionStarters))
		for i, s := range in.QuestionStarters {
			starters[i] = fmt.Sprintf("%s (%d)", s.Word, s.Count)
		}
		fmt.Fprintf(w, "%s %s\n", colorize(boldStyle, "You usually start with:"), strings.Join(starters, ", "))
	}

	if len(in.TopWords) > 0 {
		words := make([]string, len(in.TopWords))
		for i, wc := range in.TopWords {
			words[i] = fmt.Sprintf("%s (%d)", wc.Word, wc.Count)
		}
		fmt.Fprintf(w, "%s %s\n", colorize(boldStyle, "Your words:"), strings.Join(words, ", "))
	}

	if e := in.Evolution; e != nil {
		trend := "about the same length"
		switch {
		case e.Change > 0:
			trend = "getting longer"
		case e.Change < 0:
			trend = "getting shorter"
		}
		fmt.Fprintf(w, "%s %s (%.1f → %.1f words)\n", colorize(boldStyle, "Your messages are"), trend, e.FirstAvgWords, e.LastAvgWords)
	}
}

// --- classify ---

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Show which life domain a message belongs to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printClassification(os.Stdout, strings.Join(args, " "))
		return nil
	},
}

func printClassification(w io.Writer, text string) {
	fmt.Fprintf(w, "%s %s\n", colorize(boldStyle, "Domain:"), domainBadge(string(domain.Classify(text))))
	for _, s := range domain.Scores(text) {
		if s.Score > 0 {
			fmt.Fprintf(w, "  %-14s %.1f\n", s.Domain, s.Score)
		}
	}
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export conversations or statistics",
}

var exportConversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Export conversations as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/export/conversations.csv")
		if err != nil {
			return err
		}
		if err := checkResponse(resp); err != nil {
			return err
		}
		defer resp.Body.Close()

		return writeOutput(output, func(w io.Writer) error {
			_, err := io.Copy(w, resp.Body)
			return err
		})
	},
}

var exportStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Export a statistics report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/export/stats")
		if err != nil {
			return err
		}
		var report analytics.Report
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		return writeOutput(output, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		})
	},
}

func init() {
	exportConversationsCmd.Flags().String("output", "", "output file path (default: stdout)")
	exportStatsCmd.Flags().String("output", "", "output file path (default: stdout)")
	exportCmd.AddCommand(exportConversationsCmd)
	exportCmd.AddCommand(exportStatsCmd)
}

// writeOutput runs write against the named file, or stdout when output is empty.
func writeOutput(output string, write func(io.Writer) error) error {
	if output == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	printSuccess("Exported to %s", output)
	return nil
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(boldStyle, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if key == "llm.api_key" {
			if err := config.SetAPIKey(config.NewKeychain(), value); err != nil {
				return err
			}
			printSuccess("Stored LLM API key in the secrets file")
			return nil
		}

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
