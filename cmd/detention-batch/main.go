package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"detention/internal/bootstrap"
	"detention/internal/platform/config"
	"detention/internal/platform/logger"
	phttp "detention/internal/platform/net/http"

	"detention/internal/services/api"
	batchdom "detention/internal/services/batch/domain"
	pipedom "detention/internal/services/pipeline/domain"
)

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}

func main() {
	var (
		fIDs      = flag.String("ids", "", "comma separated order ids")
		fFile     = flag.String("file", "", "file with one order id per line (- for stdin)")
		fResume   = flag.Bool("resume", false, "resume the saved run instead of starting a new one")
		fApproval = flag.String("approval", "", "default approval policy: wait | approve | decline | skip")
		fDryRun   = flag.Bool("dry-run", false, "analyse and report without mutating orders")
		fAPI      = flag.String("api", "", "serve the API on this address while the run is active, e.g. :4000")
		fOut      = flag.String("out", "", "write report rows as JSON lines to this file")
	)
	flag.Parse()

	l := logger.Get()
	if err := config.LoadFromEnv(); err != nil {
		l.Panic().Err(err).Msg("config file")
	}

	if *fResume && (*fIDs != "" || *fFile != "") {
		l.Panic().Msg("-resume does not take -ids or -file")
	}

	// surface flags to modules that read FromConfig
	mustSetEnv("DETENTION_APPROVAL_POLICY", *fApproval)
	if *fDryRun {
		mustSetEnv("DETENTION_BATCH_DRY_RUN", "1")
	}
	mustSetEnv("DETENTION_CLI_ADDR", *fAPI)

	root := config.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := bootstrap.OpenStore(ctx, root, "detention-batch")
	if err != nil {
		l.Panic().Err(err).Msg("store open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	eng, err := bootstrap.Build(ctx, root, st, bootstrap.Options{})
	if err != nil {
		l.Panic().Err(err).Msg("bootstrap failed")
	}
	go eng.Session.RunRefresher(ctx)

	if *fAPI != "" {
		cliCfg := root.Prefix("DETENTION_CLI_")
		srv := phttp.NewServer(cliCfg)
		api.Mount(srv.Router(), api.Options{
			Config:      cliCfg,
			Store:       st,
			Engine:      eng.API(),
			ServiceName: "detention-batch",
		})
		sctx, scancel := context.WithCancel(ctx)
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := srv.Run(sctx); err != nil {
				l.Error().Err(err).Msg("embedded api stopped")
			}
		}()
		defer func() {
			scancel()
			<-served
		}()
	}

	var runID string
	if *fResume {
		runID, err = eng.Batch.Resume(ctx)
	} else {
		var ids []string
		ids, err = collectIDs(*fIDs, *fFile)
		if err != nil {
			l.Panic().Err(err).Msg("read order ids")
		}
		if len(ids) == 0 {
			l.Panic().Msg("no order ids: use -ids, -file or -resume")
		}
		runID, err = eng.Batch.Start(ctx, ids, batchdom.StartOptions{DryRun: *fDryRun})
	}
	if err != nil {
		l.Panic().Err(err).Msg("batch did not start")
	}
	l.Info().Str("run_id", runID).Bool("resume", *fResume).Msg("batch started")

	// first signal cancels the run; its snapshot stays for -resume
	go func() {
		<-ctx.Done()
		if err := eng.Batch.Cancel(); err == nil {
			l.Warn().Str("run_id", runID).Msg("cancel requested, resume later with -resume")
		}
	}()

	p, err := eng.Batch.Wait(context.Background())
	if err != nil {
		l.Error().Err(err).Str("run_id", runID).Msg("batch ended with error")
	}

	rows := eng.Batch.Report()
	if *fOut != "" {
		if err := writeReport(*fOut, rows); err != nil {
			l.Error().Err(err).Str("path", *fOut).Msg("write report")
		}
	}

	ev := l.Info().
		Str("run_id", runID).
		Str("state", string(p.State)).
		Int("total", p.Total).
		Int("processed", p.Processed).
		Int("succeeded", p.Succeeded).
		Int("failed", p.Failed).
		Int("remaining", p.Remaining).
		Dur("elapsed", p.Elapsed)
	for outcome, n := range countOutcomes(rows) {
		ev = ev.Int(string(outcome), n)
	}
	ev.Msg("batch summary")

	if p.Failed > 0 || err != nil {
		os.Exit(1)
	}
}

// collectIDs merges -ids and -file, trimming blanks and dropping duplicates in order
func collectIDs(csv, file string) ([]string, error) {
	var raw []string
	if csv != "" {
		raw = append(raw, strings.Split(csv, ",")...)
	}
	if file != "" {
		var r io.Reader = os.Stdin
		if file != "-" {
			f, err := os.Open(file)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		lines, err := readLines(r)
		if err != nil {
			return nil, err
		}
		raw = append(raw, lines...)
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// readLines returns non-comment lines; a line may hold several comma separated ids
func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.Split(line, ",")...)
	}
	return out, sc.Err()
}

func writeReport(path string, rows []pipedom.ReportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			_ = f.Close()
			return err
		}
	}
	return f.Close()
}

func countOutcomes(rows []pipedom.ReportRow) map[pipedom.Outcome]int {
	out := map[pipedom.Outcome]int{}
	for _, r := range rows {
		out[r.Outcome]++
	}
	return out
}
