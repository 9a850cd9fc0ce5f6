package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"scribe/internal/store"
)

var (
	flagReportID   int64
	flagFileID     int64
	flagLevel      string
	flagQuery      string
	flagSymbolID   int64
	flagEdgeType   string
	flagExportPath string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read-only queries against a persisted store",
}

// openAuditStore opens the store named by --db for reading. The path
// must already exist; a mistyped path would otherwise be created as an
// empty store and every query would silently return nothing.
func openAuditStore() (*store.Store, error) {
	if flagDB == "" {
		return nil, errors.New("audit requires --db")
	}
	if _, err := os.Stat(flagDB); err != nil {
		return nil, fmt.Errorf("audit store %s: %w", flagDB, err)
	}
	return store.Open(flagDB, store.Options{Persist: true, AllowExisting: true})
}

var auditListFilesCmd = &cobra.Command{
	Use:   "list-files",
	Short: "List ingested files",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		files, err := st.Files()
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Printf("%d\t%s\t%s\n", f.ID, f.Path, f.Lang)
		}
		return nil
	},
}

var auditListReportsCmd = &cobra.Command{
	Use:   "list-reports",
	Short: "List report versions with scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		reports, err := st.ReportVersions()
		if err != nil {
			return err
		}
		for _, r := range reports {
			fmt.Printf("id=%d created=%s coverage=%.2f citations=%.2f\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.CoverageScore, r.CitationScore)
		}
		return nil
	},
}

var auditShowReportCmd = &cobra.Command{
	Use:   "show-report",
	Short: "Print a report's content",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		r, ok, err := st.ReportVersion(flagReportID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("report %d not found", flagReportID)
		}
		fmt.Println(r.Content)
		return nil
	},
}

var auditExportReportCmd = &cobra.Command{
	Use:   "export-report",
	Short: "Write a report's content to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		r, ok, err := st.ReportVersion(flagReportID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("report %d not found", flagReportID)
		}
		if err := os.WriteFile(flagExportPath, []byte(r.Content), 0o644); err != nil {
			return err
		}
		fmt.Printf("Wrote report %d to %s\n", flagReportID, flagExportPath)
		return nil
	},
}

var auditListClaimsCmd = &cobra.Command{
	Use:   "list-claims",
	Short: "List claims for a report version",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		cls, err := st.ClaimsForReport(flagReportID)
		if err != nil {
			return err
		}
		for _, c := range cls {
			fmt.Printf("id=%d status=%s severity=%s text=%s\n", c.ID, c.Status, c.Severity, c.Text)
		}
		return nil
	},
}

var auditListSymbolsCmd = &cobra.Command{
	Use:   "list-symbols",
	Short: "List symbols, optionally for one file",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		var symbols []store.SymbolRecord
		if flagFileID != 0 {
			symbols, err = st.SymbolsForFile(flagFileID)
			if err != nil {
				return err
			}
		} else {
			files, err := st.Files()
			if err != nil {
				return err
			}
			for _, f := range files {
				syms, err := st.SymbolsForFile(f.ID)
				if err != nil {
					return err
				}
				symbols = append(symbols, syms...)
			}
		}
		for _, s := range symbols {
			fmt.Printf("id=%d file=%d kind=%s name=%s [%d-%d]\n",
				s.ID, s.FileID, s.Kind, s.Name, s.StartLine, s.EndLine)
		}
		return nil
	},
}

var auditListSummariesCmd = &cobra.Command{
	Use:   "list-summaries",
	Short: "List summaries, optionally by level",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		summaries, err := st.SummariesByLevel(flagLevel)
		if err != nil {
			return err
		}
		for _, s := range summaries {
			fmt.Printf("id=%d level=%s target=%d conf=%.2f text=%s\n",
				s.ID, s.Level, s.TargetID, s.Confidence, truncate(s.Text, 80))
		}
		return nil
	},
}

var auditSearchChunksCmd = &cobra.Command{
	Use:   "search-chunks",
	Short: "Full-text search over chunk text",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		chunks, err := st.SearchChunks(flagQuery, 20)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			fmt.Printf("id=%d file=%d [%d-%d] %s\n",
				c.ID, c.FileID, c.StartLine, c.EndLine, truncate(c.Text, 80))
		}
		return nil
	},
}

var auditSymbolNeighborsCmd = &cobra.Command{
	Use:   "symbol-neighbors",
	Short: "List edges touching a symbol",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		edges, err := st.EdgesForSymbol(flagSymbolID)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if flagEdgeType != "" && e.EdgeType != flagEdgeType {
				continue
			}
			fmt.Printf("%d -[%s]-> %d\n", e.SrcSymbolID, e.EdgeType, e.DstSymbolID)
		}
		return nil
	},
}

var auditListRetrievalsCmd = &cobra.Command{
	Use:   "list-retrieval-events",
	Short: "List recorded retrievals",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		events, err := st.RetrievalEvents(flagReportID)
		if err != nil {
			return err
		}
		for _, ev := range events {
			fmt.Printf("id=%d report=%d iter=%d chunks=%d symbols=%d created=%s\n",
				ev.ID, ev.ReportVersion, ev.Iteration, len(ev.ChunkIDs), len(ev.SymbolIDs),
				ev.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var auditIterationStatusCmd = &cobra.Command{
	Use:   "list-iteration-status",
	Short: "List per-iteration metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		statuses, err := st.IterationStatuses(flagReportID)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			fmt.Printf("report=%d iter=%d cov=%.2f support=%.2f cite=%.2f issues(high/med/low)=%d/%d/%d missing_citations=%d\n",
				s.ReportVersion, s.Iteration, s.Coverage, s.SupportRate, s.CitationRate,
				s.IssuesHigh, s.IssuesMed, s.IssuesLow, s.MissingCitations)
		}
		return nil
	},
}

var auditIterationIssuesCmd = &cobra.Command{
	Use:   "list-iteration-issues",
	Short: "List per-iteration issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAuditStore()
		if err != nil {
			return err
		}
		defer st.Close()
		issues, err := st.IterationIssues(flagReportID)
		if err != nil {
			return err
		}
		for _, is := range issues {
			hint := ""
			if is.FixHint != "" {
				hint = " hint=" + is.FixHint
			}
			fmt.Printf("report=%d iter=%d severity=%s desc=%s%s\n",
				is.ReportVersion, is.Iteration, is.Severity, is.Description, hint)
		}
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func init() {
	auditShowReportCmd.Flags().Int64Var(&flagReportID, "id", 0, "report version id")
	auditShowReportCmd.MarkFlagRequired("id")
	auditExportReportCmd.Flags().Int64Var(&flagReportID, "id", 0, "report version id")
	auditExportReportCmd.Flags().StringVar(&flagExportPath, "out", "", "output file")
	auditExportReportCmd.MarkFlagRequired("id")
	auditExportReportCmd.MarkFlagRequired("out")
	auditListClaimsCmd.Flags().Int64Var(&flagReportID, "report-id", 0, "report version id")
	auditListClaimsCmd.MarkFlagRequired("report-id")
	auditListSymbolsCmd.Flags().Int64Var(&flagFileID, "file-id", 0, "restrict to one file")
	auditListSummariesCmd.Flags().StringVar(&flagLevel, "level", "", "chunk, file, module or package")
	auditSearchChunksCmd.Flags().StringVar(&flagQuery, "query", "", "search query")
	auditSearchChunksCmd.MarkFlagRequired("query")
	auditSymbolNeighborsCmd.Flags().Int64Var(&flagSymbolID, "symbol-id", 0, "symbol id")
	auditSymbolNeighborsCmd.Flags().StringVar(&flagEdgeType, "edge-type", "", "filter by edge type")
	auditSymbolNeighborsCmd.MarkFlagRequired("symbol-id")
	auditListRetrievalsCmd.Flags().Int64Var(&flagReportID, "report-id", 0, "filter by report version")
	auditIterationStatusCmd.Flags().Int64Var(&flagReportID, "report-id", 0, "filter by report version")
	auditIterationIssuesCmd.Flags().Int64Var(&flagReportID, "report-id", 0, "filter by report version")

	auditCmd.AddCommand(
		auditListFilesCmd,
		auditListReportsCmd,
		auditShowReportCmd,
		auditExportReportCmd,
		auditListClaimsCmd,
		auditListSymbolsCmd,
		auditListSummariesCmd,
		auditSearchChunksCmd,
		auditSymbolNeighborsCmd,
		auditListRetrievalsCmd,
		auditIterationStatusCmd,
		auditIterationIssuesCmd,
	)
	rootCmd.AddCommand(auditCmd)
}
