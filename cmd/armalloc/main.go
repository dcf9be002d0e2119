package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"armalloc/internal/bandit"
	"armalloc/internal/config"
	"armalloc/internal/engine"
	"armalloc/internal/history"
	"armalloc/internal/report"
	"armalloc/internal/uploader"
	"armalloc/internal/util"

	"gopkg.in/yaml.v3"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	snapshotPath := flag.String("snapshot", "", "snapshot file (overrides history.path and forces the file source)")
	subtypeName := flag.String("subtype", "", "default bandit subtype (overrides policy.subtype)")
	database := flag.String("database", "", "history database (overrides history.database and the DSN database)")
	flag.Parse()

	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg, *snapshotPath, *subtypeName, *database)
	util.SetVerbose(cfg.Logging.Verbose)
	logFile, err := util.TeeLogFile(cfg.Logging.LogFile)
	if err != nil {
		util.Warnf("log file disabled: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, os.Stdout)
	stop()
	util.CloseWithErr(logFile, "log file")
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
}

func applyFlags(cfg *config.Config, snapshotPath, subtypeName, database string) {
	if snapshotPath != "" {
		cfg.History.Source = config.HistorySourceFile
		cfg.History.Path = snapshotPath
	}
	if subtypeName != "" {
		cfg.Policy.Subtype = subtypeName
	}
	if database != "" {
		cfg.History.Database = database
		cfg.History.DSN = config.UpdateDatabaseInDSN(cfg.History.DSN, database)
	}
}

func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	subtype, err := bandit.ParseSubtype(cfg.Policy.Subtype)
	if err != nil {
		return err
	}
	util.Infof("starting armalloc with %d worker(s), subtype %s", cfg.Workers, subtype)
	if data, err := yaml.Marshal(redacted(cfg)); err == nil {
		util.Highlightf("config:\n%s", string(data))
	}

	src, err := history.NewSource(cfg.History)
	if err != nil {
		return err
	}
	if closer, ok := src.(io.Closer); ok {
		defer util.CloseWithErr(closer, "history source")
	}
	snap, err := src.Load(ctx)
	if err != nil {
		return err
	}
	util.Infof("loaded %d experiment(s) from %s", len(snap.Experiments), cfg.History.Source)

	results, err := engine.New(cfg.Workers, subtype).Run(ctx, snap)
	if err != nil {
		return err
	}
	printResults(out, results)

	reporter := report.New(cfg.Report.OutputDir)
	reporter.UseUUIDPath = cfg.Report.UseUUIDPath
	runDir, err := reporter.NewRun()
	if err != nil {
		return err
	}
	if err := reporter.WriteAllocations(runDir, results); err != nil {
		return err
	}
	up, err := uploader.New(cfg.Storage)
	if err != nil {
		return err
	}
	if closer, ok := up.(io.Closer); ok {
		defer util.CloseWithErr(closer, "uploader")
	}
	summary, err := finalizeRun(ctx, reporter, runDir, report.BuildSummary(runDir, cfg.History.Source, results), cfg.Report.Archive, up)
	if err != nil {
		return err
	}
	util.Infof("run %s written to %s (%d experiment(s), %d failed)", runDir.ID, runDir.Dir, summary.Experiments, summary.Failed)
	return nil
}

// finalizeRun fills the archive and upload fields before the summary is
// written, so the archived, uploaded and local summaries match.
func finalizeRun(ctx context.Context, reporter *report.Reporter, runDir report.Run, summary report.Summary, archive bool, up uploader.Uploader) (report.Summary, error) {
	if archive {
		summary.ArchiveName, summary.ArchiveCodec = report.RunArchiveName, report.RunArchiveCodec
	}
	if up.Enabled() {
		summary.UploadLocation = up.Location(runDir.Dir)
	}
	if err := reporter.WriteSummary(runDir, summary); err != nil {
		return summary, err
	}
	if archive {
		if _, _, err := reporter.WriteArchive(runDir); err != nil {
			util.Warnf("archive run %s: %v", runDir.ID, err)
			summary.ArchiveName, summary.ArchiveCodec = "", ""
			if err := reporter.WriteSummary(runDir, summary); err != nil {
				return summary, err
			}
		}
	}
	if !up.Enabled() {
		return summary, nil
	}
	loc, err := up.UploadDir(ctx, runDir.Dir)
	if err != nil {
		util.Errorf("upload run %s: %v", runDir.ID, err)
		summary.UploadLocation = ""
		return summary, reporter.WriteSummary(runDir, summary)
	}
	util.Infof("uploaded run %s to %s", runDir.ID, loc)
	return summary, nil
}

func printResults(out io.Writer, results []engine.Result) {
	for _, res := range results {
		if res.Error != "" {
			fmt.Fprintf(out, "%s\terror: %s\n", res.Experiment, res.Error)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", res.Experiment, formatAllocation(res.Allocation))
	}
}

func formatAllocation(alloc bandit.Allocation) string {
	names := make([]string, 0, len(alloc))
	for name := range alloc {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%.4f", name, alloc[name]))
	}
	return strings.Join(parts, " ")
}

func redacted(cfg config.Config) config.Config {
	if cfg.Storage.S3.SecretAccessKey != "" {
		cfg.Storage.S3.SecretAccessKey = "***"
	}
	if cfg.Storage.S3.SessionToken != "" {
		cfg.Storage.S3.SessionToken = "***"
	}
	cfg.History.DSN = config.RedactDSN(cfg.History.DSN)
	return cfg
}
