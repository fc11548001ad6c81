package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/jackpal/gateway"
	"github.com/spf13/cobra"

	"github.com/wesleywu/routesock/internal/batch"
	"github.com/wesleywu/routesock/internal/config"
	"github.com/wesleywu/routesock/internal/iface"
	"github.com/wesleywu/routesock/internal/logger"
	"github.com/wesleywu/routesock/internal/metrics"
	"github.com/wesleywu/routesock/route"
	"github.com/wesleywu/routesock/routing"
)

var (
	version = "1.0.0"

	configFile  string
	silentMode  bool
	verboseMode bool

	gatewayFlag string
	devFlag     string
	deleteFlag  bool
	metricsFlag string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "routesock",
		Short: "Kernel routing table client",
		Long:  `Add, delete, look up and watch kernel routes over rtnetlink (Linux) or the routing socket (macOS, FreeBSD).`,
	}

	addCmd := &cobra.Command{
		Use:   "add CIDR",
		Short: "Add a route",
		Long:  `Add a route via a gateway (--gateway), out of an interface (--dev), or both.`,
		Args:  cobra.ExactArgs(1),
		Run:   runAdd,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete CIDR",
		Short: "Delete a route",
		Args:  cobra.ExactArgs(1),
		Run:   runDelete,
	}

	getCmd := &cobra.Command{
		Use:   "get ADDRESS|CIDR",
		Short: "Show the most specific route covering a destination",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print routing table changes",
		Long:  `Print routing table changes until interrupted, optionally serving Prometheus metrics.`,
		Args:  cobra.NoArgs,
		Run:   runMonitor,
	}

	applyCmd := &cobra.Command{
		Use:   "apply FILE",
		Short: "Add (or delete) every route listed in a file",
		Long:  `Apply a route list, one "CIDR [via GATEWAY] [dev IFNAME]" per line, concurrently.`,
		Args:  cobra.ExactArgs(1),
		Run:   runApply,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run:   showVersion,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&silentMode, "silent", "s", false, "Silent mode (errors only)")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "Verbose mode (debug level logging)")

	for _, cmd := range []*cobra.Command{addCmd, deleteCmd} {
		cmd.Flags().StringVarP(&gatewayFlag, "gateway", "g", "", "Gateway address, or \"default\" for the current default gateway")
		cmd.Flags().StringVarP(&devFlag, "dev", "d", "", "Output interface name")
	}
	getCmd.Flags().StringVarP(&devFlag, "dev", "d", "", "Only consider routes out of this interface")
	applyCmd.Flags().BoolVar(&deleteFlag, "delete", false, "Delete the listed routes instead of adding them")
	monitorCmd.Flags().StringVar(&metricsFlag, "metrics", "", "Serve /metrics on this address (overrides metrics_listen)")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command uses.
func setup() (*config.Config, *logger.Logger) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if silentMode {
		cfg.LogLevel = "error"
	}

	if verboseMode {
		cfg.LogLevel = "debug"
	}

	iface.SetDefault(iface.NewResolver(cfg.InterfaceCacheTTL.Duration))

	log := logger.NewWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	log.Debug("Configuration loaded", "config_file", configFile, "log_level", cfg.LogLevel)
	return cfg, log
}

func openHandle(cfg *config.Config, log *logger.Logger, extra ...routing.Option) routing.Handle {
	opts := append(cfg.ToOptions(), routing.WithLogger(log.Logger))
	h, err := routing.Open(append(opts, extra...)...)
	if err != nil {
		log.Error("Failed to open routing socket", "error", err)
		os.Exit(1)
	}
	return h
}

// routeFromArgs builds the route from the CIDR argument and --gateway/--dev.
func routeFromArgs(arg string) (route.Route, error) {
	r, err := route.Parse(arg)
	if err != nil {
		return route.Route{}, err
	}
	if gatewayFlag != "" {
		gw, err := parseGateway(gatewayFlag)
		if err != nil {
			return route.Route{}, err
		}
		r = r.WithGateway(gw)
	}
	if devFlag != "" {
		if r, err = r.WithInterface(devFlag); err != nil {
			return route.Route{}, err
		}
	}
	return r, nil
}

// parseGateway accepts an address or "default" for the host's current
// default gateway.
func parseGateway(s string) (netip.Addr, error) {
	if s != "default" {
		gw, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("invalid gateway %q: %w", s, err)
		}
		return gw, nil
	}
	ip, err := gateway.DiscoverGateway()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to discover default gateway: %w", err)
	}
	gw, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, fmt.Errorf("invalid default gateway %v", ip)
	}
	return gw.Unmap(), nil
}

func runAdd(_ *cobra.Command, args []string) {
	runChange(args[0], "add", routing.Handle.Add)
}

func runDelete(_ *cobra.Command, args []string) {
	runChange(args[0], "delete", routing.Handle.Delete)
}

func runChange(arg, action string, fn func(routing.Handle, route.Route) error) {
	cfg, log := setup()

	r, err := routeFromArgs(arg)
	if err != nil {
		log.Error("Invalid route", "route", arg, "error", err)
		os.Exit(1)
	}

	h := openHandle(cfg, log)
	defer h.Close()

	if err := fn(h, r); err != nil {
		log.Error("Route operation failed", "action", action, "route", r.String(), "error", err)
		h.Close()
		os.Exit(exitCode(err))
	}
	log.Info("Route operation completed", "action", action, "route", r.String())
}

func runGet(_ *cobra.Command, args []string) {
	cfg, log := setup()

	filter, err := routeFromArgs(args[0])
	if err != nil {
		log.Error("Invalid destination", "destination", args[0], "error", err)
		os.Exit(1)
	}

	h := openHandle(cfg, log)
	defer h.Close()

	r, err := h.Get(filter)
	if err != nil {
		log.Error("Route lookup failed", "destination", filter.String(), "error", err)
		h.Close()
		os.Exit(exitCode(err))
	}
	fmt.Println(describe(r))
}

func runMonitor(_ *cobra.Command, _ []string) {
	cfg, log := setup()

	groups, err := cfg.MonitorGroups()
	if err != nil {
		log.Error("Invalid monitor groups", "error", err)
		os.Exit(1)
	}

	m := metrics.NewMetrics()
	h := openHandle(cfg, log, routing.WithGroups(groups...), routing.WithObserver(m))

	listen := cfg.MetricsListen
	if metricsFlag != "" {
		listen = metricsFlag
	}
	if listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: listen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", "address", listen, "error", err)
			}
		}()
		defer srv.Close()
		log.Info("Serving metrics", "address", listen)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		// unblocks the pending Monitor call
		h.Close()
	}()

	log.Info("Watching routing table", "platform", runtime.GOOS)
	defer log.MonitorStop()

	buf := routing.NewBuffer()
	for {
		change, r, err := h.Monitor(buf)
		if errors.Is(err, route.ErrCommunication) {
			// socket closed by the signal handler, or a real I/O failure
			log.Debug("Monitor stopped", "error", err)
			return
		}
		if err != nil {
			log.Warn("Routing message reported an error", "change", change.String(), "error", err)
			continue
		}
		if change.Kind == route.ChangeOther {
			continue
		}
		log.RouteEvent(change.String(), describe(r))
	}
}

func runApply(_ *cobra.Command, args []string) {
	cfg, log := setup()

	routes, err := config.LoadRoutes(args[0])
	if err != nil {
		log.Error("Failed to load routes", "file", args[0], "error", err)
		os.Exit(1)
	}
	log.ConfigLoaded(args[0], len(routes))

	p, err := batch.Open(cfg.Concurrency, func() (routing.Handle, error) {
		return routing.Open(append(cfg.ToOptions(), routing.WithLogger(log.Logger))...)
	}, log)
	if err != nil {
		log.Error("Failed to open routing sockets", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	action := batch.ActionAdd
	if deleteFlag {
		action = batch.ActionDelete
	}

	summary := p.Apply(action, routes)
	if err := summary.Err(); err != nil {
		log.Error("Route list not fully applied", "failed", summary.Failed, "error", err)
		p.Close()
		os.Exit(1)
	}
}

func showVersion(_ *cobra.Command, _ []string) {
	fmt.Printf("routesock v%s\n", version)
	fmt.Printf("Runtime: %s\n", runtime.Version())
	fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// describe prints r with the interface name when it can be resolved.
func describe(r route.Route) string {
	s := r.String()
	if r.HasInterface() {
		if name, err := iface.Name(r.IfIndex); err == nil {
			s += " (" + name + ")"
		}
	}
	return s
}

// exitCode distinguishes "already in that state" outcomes for scripts.
func exitCode(err error) int {
	switch {
	case errors.Is(err, route.ErrAlreadyExists):
		return 2
	case errors.Is(err, route.ErrNotFound):
		return 3
	default:
		return 1
	}
}
