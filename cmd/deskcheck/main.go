package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/christopherklint97/deskcheck/internal/calendar"
	"github.com/christopherklint97/deskcheck/internal/config"
	"github.com/christopherklint97/deskcheck/internal/console"
	"github.com/christopherklint97/deskcheck/internal/reconcile"
	"github.com/christopherklint97/deskcheck/internal/render"
	"github.com/christopherklint97/deskcheck/internal/report"
	"github.com/christopherklint97/deskcheck/internal/scheduler"
	"github.com/christopherklint97/deskcheck/internal/server"
	"github.com/christopherklint97/deskcheck/internal/store"
	"github.com/christopherklint97/deskcheck/internal/tui"
)

const (
	tokenStateKey   = "console_token"
	employeeListTTL = 10 * time.Minute
	buildLimit      = 4
)

var rootCmd = &cobra.Command{
	Use:           "deskcheck",
	Short:         "Reconcile employee attendance with coworking bookings",
	Long:          "deskcheck fetches attendance and coworking bookings from the employer console and shows, per day, who was present, absent on a booked day, or booked for an upcoming day.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var reportCmd = &cobra.Command{
	Use:   "report [employee-id...]",
	Short: "Print the reconciled calendar of one or more employees",
	RunE:  runReport,
}

var calendarCmd = &cobra.Command{
	Use:   "calendar <employee-id>",
	Short: "Browse an employee's calendar interactively",
	Args:  cobra.ExactArgs(1),
	RunE:  runCalendar,
}

var exportCmd = &cobra.Command{
	Use:   "export <employee-id>",
	Short: "Export an employee's calendar as iCalendar",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var employeesCmd = &cobra.Command{
	Use:   "employees",
	Short: "List employees",
	RunE:  runEmployees,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent report runs",
	RunE:  runHistory,
}

var watchCmd = &cobra.Command{
	Use:   "watch [employee-id...]",
	Short: "Watch employees and notify on booked-day absences",
	RunE:  runWatch,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running watch",
	RunE:  runStop,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve calendars over a local JSON API",
	RunE:  runServe,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the report document",
	RunE: func(cmd *cobra.Command, args []string) error {
		return render.Schema(cmd.OutOrStdout())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Open config file in your editor",
	RunE:  runConfig,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/deskcheck/config.toml)")

	for _, c := range []*cobra.Command{reportCmd, calendarCmd, exportCmd, serveCmd} {
		c.Flags().String("bookings-ics", "", "Read bookings from an iCalendar file or URL instead of the console")
		c.Flags().Bool("offline", false, "Use the last fetched data instead of calling the console")
	}
	for _, c := range []*cobra.Command{reportCmd, calendarCmd, exportCmd} {
		c.Flags().String("from", "", `Window start (YYYY-MM-DD or e.g. "last monday")`)
		c.Flags().String("to", "", `Window end (YYYY-MM-DD or e.g. "2 weeks from now")`)
	}
	reportCmd.Flags().StringP("format", "f", "", "Output format: table, json or yaml (default from config)")
	reportCmd.Flags().Bool("all", false, "Report on every employee")
	exportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	historyCmd.Flags().Int("employee", 0, "Only show runs for this employee")
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs")
	watchCmd.Flags().Bool("save", false, "Save the given employees as the default watch list")
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(calendarCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(employeesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func configPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p, nil
	}
	return config.ConfigPath()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// env holds what most commands need: config, local store, console client and logger.
type env struct {
	cfg    *config.Config
	db     *store.DB
	client *console.Client
	logger *slog.Logger
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

func setup(ctx context.Context, cmd *cobra.Command, authenticate bool) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd)

	db, err := store.Open()
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	e := &env{
		cfg:    cfg,
		db:     db,
		client: console.NewClient(cfg.Console.BaseURL, "", employeeListTTL, logger),
		logger: logger,
	}
	if authenticate {
		if err := e.authenticate(ctx); err != nil {
			e.Close()
			return nil, err
		}
	}
	e.client.SetCredentials(cfg.Console.Email, cfg.Console.Password, func(token string) {
		if err := e.db.SetState(tokenStateKey, token); err != nil {
			logger.Warn("caching console token", "error", err)
		}
	})
	return e, nil
}

// authenticate picks a token: configured, then cached and unexpired, then a fresh login.
func (e *env) authenticate(ctx context.Context) error {
	if e.cfg.Console.Token != "" {
		e.client.SetToken(e.cfg.Console.Token)
		return nil
	}

	if cached, err := e.db.GetState(tokenStateKey); err == nil && console.TokenUsable(cached, time.Now()) {
		e.client.SetToken(cached)
		return nil
	}

	if e.cfg.Console.Email == "" || e.cfg.Console.Password == "" {
		return fmt.Errorf("console credentials not configured; run 'deskcheck config' or set DESKCHECK_EMAIL and DESKCHECK_PASSWORD")
	}
	token, err := e.client.Login(ctx, e.cfg.Console.Email, e.cfg.Console.Password)
	if err != nil {
		return err
	}
	if err := e.db.SetState(tokenStateKey, token); err != nil {
		e.logger.Warn("caching console token", "error", err)
	}
	return nil
}

// service builds the report service. An --bookings-ics feed gets its horizon from each
// request window.
func (e *env) service(cmd *cobra.Command) (*report.Service, error) {
	order, err := report.OrderForPolicy(e.cfg.Report.OverlapPolicy)
	if err != nil {
		return nil, err
	}
	opts := reconcile.Options{
		Thresholds: reconcile.Thresholds{
			FullDay:    e.cfg.Report.FullDayHours,
			PartialDay: e.cfg.Report.PartialDayHours,
		},
		Order: order,
	}

	svcOpts := []report.Option{report.WithStore(e.db), report.WithLogger(e.logger)}
	if f := cmd.Flags().Lookup("bookings-ics"); f != nil && f.Value.String() != "" {
		svcOpts = append(svcOpts, report.WithBookingSource(calendar.Feed{Source: f.Value.String()}))
	}
	return report.NewService(e.client, opts, svcOpts...), nil
}

// names maps employee IDs to display names. Lookup failures leave the map empty.
func (e *env) names(ctx context.Context) map[int]string {
	out := make(map[int]string)
	employees, err := e.client.ListEmployees(ctx)
	if err != nil {
		e.logger.Debug("listing employees for names", "error", err)
		return out
	}
	for _, emp := range employees {
		out[emp.ID] = emp.DisplayName()
	}
	return out
}

func parseEmployeeIDs(args []string) ([]int, error) {
	seen := make(map[int]bool)
	var ids []int
	for _, a := range args {
		id, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid employee id %q", a)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func windowFlags(cmd *cobra.Command, cfg *config.Config) (reconcile.Window, error) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	return resolveWindow(cfg.Report, from, to, time.Now())
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	offline, _ := cmd.Flags().GetBool("offline")
	all, _ := cmd.Flags().GetBool("all")

	e, err := setup(ctx, cmd, !offline)
	if err != nil {
		return err
	}
	defer e.Close()

	window, err := windowFlags(cmd, e.cfg)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = e.cfg.Report.Format
	}

	ids, err := parseEmployeeIDs(args)
	if err != nil {
		return err
	}

	var names map[int]string
	if !offline {
		names = e.names(ctx)
	}
	if all {
		if offline {
			return fmt.Errorf("--all needs the console; list employee IDs for offline reports")
		}
		ids = ids[:0]
		for id := range names {
			ids = append(ids, id)
		}
		slices.Sort(ids)
	}
	if len(ids) == 0 {
		return fmt.Errorf("no employees given; pass employee IDs or --all")
	}

	svc, err := e.service(cmd)
	if err != nil {
		return err
	}

	reqs := make([]report.Request, len(ids))
	for i, id := range ids {
		reqs[i] = report.Request{EmployeeID: id, Employee: names[id], Window: window, Offline: offline}
	}

	reports, err := svc.BuildAll(ctx, reqs, buildLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format != render.FormatTable && len(reports) > 1 {
		switch format {
		case render.FormatJSON:
			return render.JSON(out, reports)
		case render.FormatYAML:
			return render.YAML(out, reports)
		}
	}
	for i, rep := range reports {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if err := render.Report(out, format, rep); err != nil {
			return err
		}
	}
	return nil
}

func singleEmployee(args []string) (int, error) {
	ids, err := parseEmployeeIDs(args)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func runCalendar(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	id, err := singleEmployee(args)
	if err != nil {
		return err
	}
	offline, _ := cmd.Flags().GetBool("offline")

	e, err := setup(ctx, cmd, !offline)
	if err != nil {
		return err
	}
	defer e.Close()

	window, err := windowFlags(cmd, e.cfg)
	if err != nil {
		return err
	}
	svc, err := e.service(cmd)
	if err != nil {
		return err
	}

	name := ""
	if !offline {
		name = e.names(ctx)[id]
	}
	load := func(ctx context.Context) (*report.Report, error) {
		return svc.Build(ctx, report.Request{EmployeeID: id, Employee: name, Window: window, Offline: offline})
	}

	app := tui.NewApp(ctx, time.Now(), load)
	if _, err := tea.NewProgram(app, tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	id, err := singleEmployee(args)
	if err != nil {
		return err
	}
	offline, _ := cmd.Flags().GetBool("offline")

	e, err := setup(ctx, cmd, !offline)
	if err != nil {
		return err
	}
	defer e.Close()

	window, err := windowFlags(cmd, e.cfg)
	if err != nil {
		return err
	}
	svc, err := e.service(cmd)
	if err != nil {
		return err
	}

	name := ""
	if !offline {
		name = e.names(ctx)[id]
	}
	rep, err := svc.Build(ctx, report.Request{EmployeeID: id, Employee: name, Window: window, Offline: offline})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}
	return calendar.Export(out, rep.Events, calendar.ExportOptions{EmployeeID: id, Name: name})
}

func runEmployees(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	employees, err := e.client.ListEmployees(ctx)
	if err != nil {
		return err
	}
	if len(employees) == 0 {
		fmt.Println("No employees found.")
		return nil
	}

	fmt.Printf("Found %d employees:\n\n", len(employees))
	for _, emp := range employees {
		fmt.Printf("  %6d  %-28s  %s\n", emp.ID, emp.DisplayName(), emp.Email)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	employee, _ := cmd.Flags().GetInt("employee")
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	runs, err := db.ListRuns(employee, limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No report runs recorded.")
		return nil
	}

	for _, r := range runs {
		mode := ""
		if r.Offline {
			mode = " (offline)"
		}
		fmt.Printf("  %s  employee %-6d %s → %s  full %d  partial %d  absent %d  upcoming %d  skipped %d  anomalies %d%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.EmployeeID,
			r.WindowStart,
			r.WindowEnd,
			r.Counts[reconcile.StatusPresentFull],
			r.Counts[reconcile.StatusPresentPartial],
			r.Counts[reconcile.StatusAbsent],
			r.Counts[reconcile.StatusFutureBooking],
			r.Skipped,
			r.Anomalies,
			mode,
		)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	ids, err := parseEmployeeIDs(args)
	if err != nil {
		return err
	}
	if save, _ := cmd.Flags().GetBool("save"); save && len(ids) > 0 {
		path, err := configPath(cmd)
		if err != nil {
			return err
		}
		if err := config.SaveWatchEmployees(path, ids); err != nil {
			return fmt.Errorf("saving watch list: %w", err)
		}
	}
	if len(ids) == 0 {
		ids = e.cfg.Watch.Employees
	}
	if len(ids) == 0 {
		return fmt.Errorf("no employees to watch; pass employee IDs or set watch.employees")
	}

	svc, err := e.service(cmd)
	if err != nil {
		return err
	}

	names := e.names(ctx)
	targets := make([]scheduler.Target, len(ids))
	for i, id := range ids {
		targets[i] = scheduler.Target{ID: id, Name: names[id]}
	}

	return scheduler.New(e.cfg, svc, e.db, targets, e.logger).Run(ctx)
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := scheduler.ReadPID()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending stop signal: %w", err)
	}

	fmt.Printf("Sent stop signal to deskcheck (PID %d)\n", pid)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	offline, _ := cmd.Flags().GetBool("offline")
	e, err := setup(ctx, cmd, !offline)
	if err != nil {
		return err
	}
	defer e.Close()

	svc, err := e.service(cmd)
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = e.cfg.Server.Addr
	}

	srv := server.New(e.client, svc, e.cfg.Report, e.logger)
	fmt.Printf("Serving on http://%s\n", addr)
	return srv.Listen(ctx, addr)
}

func runConfig(cmd *cobra.Command, args []string) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	if err := config.WriteDefault(path); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	fmt.Printf("Opening %s with %s...\n", path, editor)

	proc := os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
	}
	process, err := os.StartProcess(editor, []string{editor, path}, &proc)
	if err != nil {
		fmt.Printf("Could not open editor. Config file is at: %s\n", path)
		return nil
	}
	_, err = process.Wait()
	return err
}
