// Command hammer is the stress-testing orchestrator's entry point: a cobra
// CLI wrapping stressor selection, the shared-memory arena, the supervisor
// fork/wait loop, and report rendering. Before cobra's command tree is ever
// consulted, main() checks whether this process is a re-exec'd worker
// (pkg/procexec) — that path never touches cobra at all, since worker mode
// is reached purely via environment variables set by the parent's own
// re-exec of itself, the substitute this tool uses for fork(2).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cuemby/hammer/pkg/arena"
	"github.com/cuemby/hammer/pkg/history"
	"github.com/cuemby/hammer/pkg/log"
	"github.com/cuemby/hammer/pkg/metrics"
	"github.com/cuemby/hammer/pkg/procexec"
	"github.com/cuemby/hammer/pkg/regime"
	"github.com/cuemby/hammer/pkg/registry"
	"github.com/cuemby/hammer/pkg/report"
	"github.com/cuemby/hammer/pkg/selection"
	"github.com/cuemby/hammer/pkg/signalcore"
	"github.com/cuemby/hammer/pkg/stressor"
	"github.com/cuemby/hammer/pkg/stressor/builtin"
	"github.com/cuemby/hammer/pkg/supervisor"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// reg is the built-in stressor catalogue. It is built once, before cobra
// parses anything, because runCmd's per-stressor flags (--<name>,
// --<name>-ops) are registered from it in init().
var reg = registry.New(builtin.Entries())

func main() {
	if procexec.IsForkProbe() {
		os.Exit(0)
	}
	if name, index, ok := procexec.IsWorker(); ok {
		initWorkerLogging()
		os.Exit(int(runWorker(name, index)))
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(int(stressor.Failure))
	}
	if exitStatus != stressor.Success {
		os.Exit(int(exitStatus))
	}
}

// exitStatus carries runRun's final verdict out past cobra and the deferred
// teardown, so main can exit with the documented status-code table.
var exitStatus = stressor.Success

var rootCmd = &cobra.Command{
	Use:   "hammer",
	Short: "hammer - a shared-memory-coordinated stress-testing harness",
	Long: `hammer forks (via re-exec, Go has no fork+continue) a tree of
stressor worker processes, supervises their lifecycle through a shared
arena of per-instance statistics and checksums, and aggregates their
output into a human and machine-readable report.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"hammer version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
	// Worker instances are re-exec'd with a fresh environment derived from
	// os.Environ() (pkg/procexec.Spawn), so stash the resolved settings
	// there rather than re-parsing cobra flags in worker mode.
	os.Setenv("HAMMER_LOG_LEVEL", logLevel)
	os.Setenv("HAMMER_LOG_JSON", strconv.FormatBool(logJSON))
}

func initWorkerLogging() {
	level := log.Level(os.Getenv("HAMMER_LOG_LEVEL"))
	if level == "" {
		level = log.InfoLevel
	}
	jsonOut, _ := strconv.ParseBool(os.Getenv("HAMMER_LOG_JSON"))
	log.Init(log.Config{Level: level, JSONOutput: jsonOut})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Select and run stressors",
	Long: `run selects a set of stressors (explicit per-stressor counts, a
regime default, --with, --class, --random), forks one re-exec'd worker
process per instance, and reports aggregated throughput once every
instance has been reaped or the timeout elapses.`,
	RunE: runRun,
}

func init() {
	for _, e := range reg.Iter() {
		name := stressor.Munge(e.Name)
		runCmd.Flags().Int32(name, 0, fmt.Sprintf("run N instances of the %s stressor", name))
		runCmd.Flags().Uint64(name+"-ops", 0, fmt.Sprintf("stop each %s instance after N bogo-ops", name))
	}

	runCmd.Flags().Int32("sequential", 0, "run every stressor one at a time, N instances each")
	runCmd.Flags().Int32("all", 0, "run every stressor in parallel, N instances each")
	runCmd.Flags().Int32("parallel", 0, "alias of --all")
	runCmd.Flags().Int32("permute", 0, "run every non-empty subset of the --with stressors, N instances each")
	runCmd.Flags().Int32("random", 0, "sample N stressors, with replacement, from the enabled universe")

	runCmd.Flags().StringSlice("with", nil, "restrict a regime selector to this comma-separated stressor list")
	runCmd.Flags().String("class", "", "restrict selection to one stressor class")
	runCmd.Flags().StringSlice("exclude", nil, "exclude these stressors from selection")
	runCmd.Flags().Bool("pathological", false, "allow class-pathological stressors (may hang or reboot the host)")

	runCmd.Flags().String("timeout", "0", "global deadline, e.g. 30s, 2m (0 = unbounded)")
	runCmd.Flags().Bool("abort", false, "stop unforked instances as soon as any instance fails")
	runCmd.Flags().Bool("aggressive", false, "keep re-pinning live workers to random CPUs while waiting")

	runCmd.Flags().Bool("metrics-brief", false, "omit the per-instance detail table")
	runCmd.Flags().String("yaml", "", "write the YAML report to this path in addition to stdout")
	runCmd.Flags().Bool("sn", false, "emit floating-point metrics in scientific notation")
	runCmd.Flags().Bool("stdout", false, "write the report table to stdout (default)")
	runCmd.Flags().Bool("stderr", false, "write the report table to stderr instead of stdout")

	runCmd.Flags().Int64("seed", 0, "seed the random-sampling generator")
	runCmd.Flags().Bool("no-rand-seed", false, "do not seed the random generator from the clock")
	runCmd.Flags().Bool("maximize", false, "bias tunable stressor defaults toward their maximum")
	runCmd.Flags().Bool("minimize", false, "bias tunable stressor defaults toward their minimum")

	runCmd.Flags().String("temp-path", "", "directory scratch-file stressors (e.g. hdd) use instead of TMPDIR")
	runCmd.Flags().String("history-db", "", "append this run's report to a bbolt history database at this path")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address for the run's duration")
}

func runRun(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	// A class token suffixed with "?" expands to its members, printed, then
	// exit — independent of any regime selector, and checked before the
	// regime-selector conflict rules below (a bare "--class cpu?" carries no
	// regime flag at all).
	if cls, _ := flags.GetString("class"); strings.HasSuffix(cls, "?") {
		return printClassMembers(cmd, strings.TrimSuffix(cls, "?"))
	}

	if err := checkConflicts(flags); err != nil {
		return err
	}

	opts, regimeKind, err := buildSelectionOptions(flags)
	if err != nil {
		return err
	}

	timeoutStr, _ := flags.GetString("timeout")
	timeout, err := parseTimeout(timeoutStr)
	if err != nil {
		return err
	}

	if tempPath, _ := flags.GetString("temp-path"); tempPath != "" {
		os.Setenv("TMPDIR", tempPath)
	}

	instances, err := selection.Select(reg, opts)
	if err != nil {
		return fmt.Errorf("selection: %w", err)
	}

	runID := uuid.New().String()
	logger := log.WithRun(runID)
	logger.Info().Msg("starting run")

	// totalSlots may legitimately be 0 (everything excluded, or a count of 0
	// everywhere): no workers are forked, but the run still renders its
	// summary with "passed: 0" lines.
	totalSlots := 0
	for _, inst := range instances {
		if inst.IgnoreRun == selection.NotIgnored {
			totalSlots += int(inst.NumInstances)
		}
	}

	ar, err := arena.Create(totalSlots)
	if err != nil {
		return fmt.Errorf("allocate arena: %w", err)
	}
	defer ar.Close()

	var metricsSrv *http.Server
	if addr, _ := flags.GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(fmt.Sprintf("metrics server: %v", err))
			}
		}()
		defer metricsSrv.Close()
	}

	ctrl := signalcore.New()
	// Re-exec'd workers inherit the parent's process group (procexec.Spawn
	// sets no SysProcAttr), so signalling pid 0 reaches them alongside the
	// orchestrator itself; the orchestrator's own re-delivery is harmless,
	// stopAndBroadcast is idempotent.
	ctrl.Broadcast = func(sig syscall.Signal) {
		markLiveSlotsSignalled(ar)
		_ = syscall.Kill(0, sig)
	}
	go ctrl.Watch()
	defer ctrl.Close()

	abort, _ := flags.GetBool("abort")
	aggressive, _ := flags.GetBool("aggressive")
	runOpts := supervisor.RunOpts{AbortOnFailure: abort, Aggressive: aggressive}
	ctx := context.Background()

	timer := metrics.NewTimer()
	var summaries []supervisor.RunSummary
	switch regimeKind {
	case selection.RegimeSequential:
		summaries = regime.Sequential(ctx, instances, ar, ctrl, timeout, runOpts)
	case selection.RegimePermute:
		summaries = regime.Permute(ctx, instances, ar, ctrl, timeout, runOpts)
	default:
		summaries = []supervisor.RunSummary{regime.Parallel(ctx, instances, ar, ctrl, timeout, runOpts)}
	}
	timer.ObserveDuration(metrics.RunDuration)
	logger.Info().Dur("duration", timer.Duration()).Msg("run finished")

	metricsBrief, _ := flags.GetBool("metrics-brief")
	scientific, _ := flags.GetBool("sn")
	toStderr, _ := flags.GetBool("stderr")

	doc, summary, instanceRows, integrityOK := buildReport(runID, regimeKind, instances, ar, summaries)

	out := cmd.OutOrStdout()
	if toStderr {
		out = cmd.ErrOrStderr()
	}
	report.WriteTable(out, doc.Metrics, scientific)
	if !metricsBrief {
		report.WriteInstances(out, instanceRows)
	}
	report.WriteSummary(out, summary)

	if yamlPath, _ := flags.GetString("yaml"); yamlPath != "" {
		f, err := os.Create(yamlPath)
		if err != nil {
			return fmt.Errorf("create --yaml output %s: %w", yamlPath, err)
		}
		defer f.Close()
		if err := report.WriteYAML(f, doc); err != nil {
			return fmt.Errorf("write --yaml output: %w", err)
		}
	}

	if dbPath, _ := flags.GetString("history-db"); dbPath != "" {
		store, err := history.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open --history-db: %w", err)
		}
		defer store.Close()
		if err := store.SaveRun(doc); err != nil {
			return fmt.Errorf("save run to --history-db: %w", err)
		}
	}

	// Deferred teardown (arena unmap, history close) must still run, so the
	// nonzero status is stashed for main() to exit with rather than calling
	// os.Exit from inside the command.
	exitStatus = finalExitCode(summaries, integrityOK)
	return nil
}

// checkConflicts enforces the flag-level mutual exclusions: regime
// selectors, --maximize/--minimize, --seed/--no-rand-seed,
// --stdout/--stderr.
func checkConflicts(flags interface {
	Changed(string) bool
}) error {
	regimeFlags := []string{"sequential", "all", "parallel", "permute", "random"}
	var set []string
	for _, f := range regimeFlags {
		if flags.Changed(f) {
			set = append(set, f)
		}
	}
	if len(set) > 1 {
		return fmt.Errorf("--%s are mutually exclusive", strings.Join(set, ", --"))
	}
	if flags.Changed("maximize") && flags.Changed("minimize") {
		return fmt.Errorf("--maximize and --minimize conflict")
	}
	if flags.Changed("seed") && flags.Changed("no-rand-seed") {
		return fmt.Errorf("--seed and --no-rand-seed conflict")
	}
	if flags.Changed("stdout") && flags.Changed("stderr") {
		return fmt.Errorf("--stdout and --stderr conflict")
	}
	if flags.Changed("with") && len(set) == 0 {
		return fmt.Errorf("--with requires one of --sequential, --all, --permute or --random")
	}
	if flags.Changed("class") && len(set) == 0 {
		return fmt.Errorf("--class requires one of --sequential, --all, --permute or --random")
	}
	return nil
}

// buildSelectionOptions translates parsed flags into selection.Options plus
// the resolved regime kind runRun needs for dispatch.
func buildSelectionOptions(flags *pflag.FlagSet) (selection.Options, selection.Regime, error) {
	opts := selection.Options{
		PerStressor:    map[string]int32{},
		PerStressorOps: map[string]uint64{},
	}

	for _, e := range reg.Iter() {
		name := stressor.Munge(e.Name)
		if flags.Changed(name) {
			n, _ := flags.GetInt32(name)
			opts.PerStressor[name] = n
		}
		if flags.Changed(name + "-ops") {
			ops, _ := flags.GetUint64(name + "-ops")
			opts.PerStressorOps[name] = ops
		}
	}

	regimeKind := selection.RegimeNone
	switch {
	case flags.Changed("sequential"):
		regimeKind = selection.RegimeSequential
		opts.RegimeN, _ = flags.GetInt32("sequential")
	case flags.Changed("all"):
		regimeKind = selection.RegimeAll
		opts.RegimeN, _ = flags.GetInt32("all")
	case flags.Changed("parallel"):
		regimeKind = selection.RegimeAll
		opts.RegimeN, _ = flags.GetInt32("parallel")
	case flags.Changed("permute"):
		regimeKind = selection.RegimePermute
		opts.RegimeN, _ = flags.GetInt32("permute")
	case flags.Changed("random"):
		regimeKind = selection.RegimeRandom
		opts.RandomN, _ = flags.GetInt32("random")
	}
	opts.Regime = regimeKind

	with, _ := flags.GetStringSlice("with")
	opts.With = with
	opts.Class, _ = flags.GetString("class")
	opts.Exclude, _ = flags.GetStringSlice("exclude")
	opts.Pathological, _ = flags.GetBool("pathological")

	if flags.Changed("seed") {
		opts.Seed, _ = flags.GetInt64("seed")
		opts.HasSeed = true
	}
	opts.NoRandSeed, _ = flags.GetBool("no-rand-seed")

	return opts, regimeKind, nil
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid --timeout value %q", s)
}

func printClassMembers(cmd *cobra.Command, class string) error {
	cls, err := registry.ResolveClass(class)
	if err != nil {
		return err
	}
	for _, e := range reg.Members(cls) {
		fmt.Fprintln(cmd.OutOrStdout(), stressor.Munge(e.Name))
	}
	return nil
}

// buildReport walks every RunSummary's results, groups them by stressor,
// aggregates metrics, validates checksums and assembles the final Document
// plus the bucketed exit-status Summary and per-instance detail rows.
func buildReport(runID string, regimeKind selection.Regime, instances []*selection.Instance, ar *arena.Arena, summaries []supervisor.RunSummary) (report.Document, report.Summary, []report.InstanceRow, bool) {
	slotsByStressor := map[string][]int{}
	summary := report.NewSummary()
	var instanceRows []report.InstanceRow
	integrityOK := true

	for _, rs := range summaries {
		for _, res := range rs.Results {
			name := stressor.Munge(res.Plan.Instance.Entry.Name)
			slotsByStressor[name] = append(slotsByStressor[name], res.Plan.SlotIndex)

			switch res.Bucket {
			case "passed":
				summary.Passed[name]++
			case "skipped":
				summary.Skipped[name]++
			case "failed":
				summary.Failed[name]++
			case "badmetrics":
				summary.BadMetrics[name]++
			}

			slot := ar.Stats(res.Plan.SlotIndex)
			instanceRows = append(instanceRows, report.InstanceRow{
				Stressor: name,
				Index:    int32(res.Plan.SlotIndex),
				PID:      slot.PID,
				Counter:  slot.CounterTotal,
				Duration: slot.DurationTotal,
				RunOK:    slot.CounterInfo.IsRunOK(),
			})
		}
	}
	// The skipped bucket additionally includes all fully-ignored stressors,
	// counted as their instance counts.
	for _, inst := range instances {
		if inst.IgnoreRun == selection.Unsupported || inst.IgnoreRun == selection.Excluded {
			summary.Skipped[stressor.Munge(inst.Entry.Name)] += int(inst.NumInstances)
		}
	}

	var rows []report.MetricRow
	for name, slots := range slotsByStressor {
		vr := metrics.Validate(ar, name, slots)
		if len(vr.Mismatches) > 0 {
			// A hash error fails the run as NOT_SUCCESS even when every
			// instance exited 0.
			log.Error(fmt.Sprintf("%s: hash error on %d instance(s)", name, len(vr.Mismatches)))
			integrityOK = false
		}
		if vr.SuspiciouslyIdle {
			log.Warn(fmt.Sprintf("%s: every instance reported a zero counter after 30s+", name))
		}
		agg := metrics.AggregateSlots(ar, name, slots)
		rows = append(rows, report.BuildRow(agg))
	}

	var wallClock time.Duration
	for _, rs := range summaries {
		wallClock += rs.Duration
	}

	doc := report.Document{
		RunInfo: report.RunInfo{
			RunID:     runID,
			StartedAt: time.Now(),
			Regime:    regimeName(regimeKind),
		},
		Metrics: rows,
		Times:   report.BuildTimes(wallClock, runtime.NumCPU(), rows),
	}
	return doc, summary, instanceRows, integrityOK
}

// markLiveSlotsSignalled flips the per-instance signalled flag on every
// slot that still has a live child in it, just before the signal that
// stops the run actually goes out. A slot with PID 0 has either not been
// forked yet or was already reaped, so it was never signalled.
func markLiveSlotsSignalled(ar *arena.Arena) {
	for i := 0; i < ar.Count; i++ {
		slot := ar.Stats(i)
		if slot.PID != 0 {
			slot.SetSignalled(true)
		}
	}
}

func regimeName(r selection.Regime) string {
	switch r {
	case selection.RegimeSequential:
		return "sequential"
	case selection.RegimePermute:
		return "permute"
	case selection.RegimeRandom:
		return "random"
	case selection.RegimeAll:
		return "all"
	default:
		return "none"
	}
}

// finalExitCode folds the boolean success flags of every RunSummary this
// invocation produced (more than one for sequential/permute regimes) into
// the single worst-applicable status. integrityOK is the checksum
// validation verdict; a hash error fails the run the same way a failed
// instance does.
func finalExitCode(summaries []supervisor.RunSummary, integrityOK bool) stressor.ExitCode {
	success, resourceOK, metricsOK := integrityOK, true, true
	for _, s := range summaries {
		success = success && s.Success
		resourceOK = resourceOK && s.ResourceSuccess
		metricsOK = metricsOK && s.MetricsSuccess
	}
	switch {
	case !success:
		return stressor.NotSuccess
	case !resourceOK:
		return stressor.NoResource
	case !metricsOK:
		return stressor.MetricsUntrustworthy
	default:
		return stressor.Success
	}
}

// runWorker is the re-exec'd worker entry point. It is wrapped in a
// recover so that a panicking stressor body is reaped as BY_SYS_EXIT
// rather than crashing without ever writing its slot's completed flag.
func runWorker(name string, index int32) (code stressor.ExitCode) {
	code = stressor.BySysExit
	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Sprintf("worker %s[%d] panicked: %v", name, index, r))
			code = stressor.BySysExit
		}
	}()

	entry, ok := reg.FindByName(name)
	if !ok {
		log.Error(fmt.Sprintf("worker: unknown stressor %q", name))
		return stressor.BySysExit
	}

	instanceCount, arenaCount, maxOps, deadline, err := procexec.WorkerParams()
	if err != nil {
		log.Error(fmt.Sprintf("worker: %v", err))
		return stressor.BySysExit
	}

	ar, err := arena.Open(procexec.StatsFD, procexec.ChecksumFD, procexec.GuardFD, int(arenaCount))
	if err != nil {
		log.Error(fmt.Sprintf("worker: open arena: %v", err))
		return stressor.BySysExit
	}
	defer ar.Close()

	return supervisor.RunWorker(ar, supervisor.ChildSpec{
		Entry:         entry,
		SlotIndex:     int(index),
		InstanceIndex: index,
		InstanceCount: instanceCount,
		MaxOps:        maxOps,
		Deadline:      deadline,
		PID:           os.Getpid(),
	})
}
