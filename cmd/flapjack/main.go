package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flapjack-io/flapjack/pkg/config"
	"github.com/flapjack-io/flapjack/pkg/core"
	"github.com/flapjack-io/flapjack/pkg/dispatch"
	"github.com/flapjack-io/flapjack/pkg/log"
	"github.com/flapjack-io/flapjack/pkg/maintenance"
	"github.com/flapjack-io/flapjack/pkg/metrics"
	"github.com/flapjack-io/flapjack/pkg/processor"
	"github.com/flapjack-io/flapjack/pkg/queue"
	"github.com/flapjack-io/flapjack/pkg/receiver"
	"github.com/flapjack-io/flapjack/pkg/reconciler"
	"github.com/flapjack-io/flapjack/pkg/resolver"
	"github.com/flapjack-io/flapjack/pkg/storage"
	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// Exit codes for the process wrapper contract.
const (
	exitOK          = 0
	exitConfigError = 1
	exitStoreDown   = 2
	exitUsage       = 64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flapjack",
	Short: "Flapjack - event-driven monitoring notification router",
	Long: `Flapjack ingests check events, tracks per-check state, applies
hold-down and maintenance suppression, resolves the contacts and media
owed a notification, and dispatches alerts with retry and backoff.`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "flapjack.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(ackCmd)
	rootCmd.AddCommand(maintenanceCmd)
	rootCmd.AddCommand(testNotifyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// loadConfig reads the config flag, exiting with exitConfigError on
// failure — this is the single place that distinguishes "config file
// problem" from ordinary command errors. It then re-initializes
// logging from the config file's log section, so log.level/log.json
// take effect even when --log-level/--log-json weren't passed on the
// command line; an explicit flag still wins over the config file.
func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(exitConfigError)
	}

	logCfg := cfg.ToLogConfig()
	if cmd.Flags().Changed("log-level") {
		logLevel, _ := cmd.Flags().GetString("log-level")
		logCfg.Level = log.Level(logLevel)
	}
	if cmd.Flags().Changed("log-json") {
		logJSON, _ := cmd.Flags().GetBool("log-json")
		logCfg.JSONOutput = logJSON
	}
	log.Init(logCfg)

	return cfg
}

// openStore opens the configured backend, exiting with exitStoreDown
// on failure.
func openStore(cfg *config.Config) storage.Store {
	var store storage.Store
	var err error
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		store = storage.NewRedisStore(client)
	default:
		store, err = storage.NewBoltStore(cfg.Store.Path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "store unavailable: %v\n", err)
		os.Exit(exitStoreDown)
	}
	return store
}

// buildRegistry wires every built-in Handler. email, sms and slack get
// their fixed handlers; the webhook-backed media (pagerduty, sns,
// jabber, sms_nexmo) use their configured gateway timeout, falling back
// to 30s when a medium has no explicit gateway entry.
func buildRegistry(cfg *config.Config) *dispatch.Registry {
	registry := dispatch.NewRegistry()
	registry.Register(types.MediumEmail, dispatch.NewEmailHandler())
	registry.Register(types.MediumSMS, dispatch.NewSMSHandler())
	registry.Register(types.MediumSlack, dispatch.NewSlackHandler())

	for _, medium := range []types.MediumType{types.MediumPagerDuty, types.MediumSNS, types.MediumJabber, types.MediumSMSNexmo} {
		timeout := 30 * time.Second
		if gw, ok := cfg.Gateways[string(medium)]; ok && gw.Timeout > 0 {
			timeout = time.Duration(gw.Timeout) * time.Second
		}
		registry.Register(medium, dispatch.NewWebhookHandler(timeout))
	}
	return registry
}

// buildCore assembles every component against an already-open store.
func buildCore(cfg *config.Config, store storage.Store) *core.Core {
	disp := dispatch.New(cfg.ToDispatchConfig(), store, buildRegistry(cfg), nil)
	res := resolver.New(store, disp)
	maint := maintenance.New(store, nil)
	proc := processor.New(store, maint, res, nil, cfg.ToProcessorConfig())
	rec := reconciler.New(store, reconciler.DefaultInterval, cfg.Processor.StateRetention)
	rcv := receiver.New(queue.NewMemoryQueue(1024))

	return core.New(store, rcv, proc, maint, res, disp, rec, nil)
}

var allMedia = []types.MediumType{
	types.MediumEmail,
	types.MediumSMS,
	types.MediumSMSNexmo,
	types.MediumSlack,
	types.MediumPagerDuty,
	types.MediumSNS,
	types.MediumJabber,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Flapjack pipeline until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		store := openStore(cfg)
		defer store.Close()

		c := buildCore(cfg, store)

		metrics.SetVersion("dev")
		metrics.RegisterComponent("store", true, "ready")
		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/health", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			http.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe("127.0.0.1:9090", nil); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()

		ctx, cancel := context.WithCancel(context.Background())
		runDone := make(chan struct{})
		go func() {
			c.Run(ctx, allMedia)
			close(runDone)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		fmt.Println("shutting down...")

		cancel()
		c.Shutdown(cfg.ToDispatchConfig().ShutdownGrace)
		<-runDone

		fmt.Println("shutdown complete")
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Submit one event directly to the processor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		store := openStore(cfg)
		defer store.Close()
		c := buildCore(cfg, store)

		entity, _ := cmd.Flags().GetString("entity")
		check, _ := cmd.Flags().GetString("check")
		state, _ := cmd.Flags().GetString("state")
		summary, _ := cmd.Flags().GetString("summary")
		eventType, _ := cmd.Flags().GetString("type")
		if entity == "" || state == "" {
			return fmt.Errorf("--entity and --state are required")
		}

		notif, err := c.Ingest(&types.RawEvent{
			Entity:  entity,
			Check:   check,
			Type:    eventType,
			State:   state,
			Summary: summary,
			Time:    time.Now().Unix(),
		})
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		if notif == nil {
			fmt.Println("event recorded, no notification emitted")
			return nil
		}
		fmt.Printf("notification emitted: %s (%s)\n", notif.Type, notif.Summary)
		return nil
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack CHECK_ID",
	Short: "Acknowledge a failing check for a duration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		store := openStore(cfg)
		defer store.Close()
		c := buildCore(cfg, store)

		durationSeconds, _ := cmd.Flags().GetInt("duration")
		summary, _ := cmd.Flags().GetString("summary")

		acked, err := c.Acknowledge(args[0], time.Duration(durationSeconds)*time.Second, summary)
		if err != nil {
			return fmt.Errorf("acknowledge: %w", err)
		}
		if !acked {
			fmt.Println("nothing to acknowledge: check is not failing")
			return nil
		}
		fmt.Println("acknowledged")
		return nil
	},
}

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Manage scheduled maintenance windows",
}

var maintenanceScheduleCmd = &cobra.Command{
	Use:   "schedule CHECK_ID",
	Short: "Schedule a maintenance window",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		store := openStore(cfg)
		defer store.Close()
		c := buildCore(cfg, store)

		durationSeconds, _ := cmd.Flags().GetInt("duration")
		summary, _ := cmd.Flags().GetString("summary")
		start := time.Now()
		end := start.Add(time.Duration(durationSeconds) * time.Second)

		window, err := c.ScheduleMaintenance(args[0], start, end, summary)
		if err != nil {
			return fmt.Errorf("schedule maintenance: %w", err)
		}
		fmt.Printf("scheduled maintenance %s from %s to %s\n", window.ID, window.StartTime.Format(time.RFC3339), window.EndTime.Format(time.RFC3339))
		return nil
	},
}

var maintenanceEndCmd = &cobra.Command{
	Use:   "end CHECK_ID WINDOW_ID",
	Short: "End a scheduled maintenance window early",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		store := openStore(cfg)
		defer store.Close()
		c := buildCore(cfg, store)

		ended, err := c.EndMaintenance(args[0], args[1], time.Now())
		if err != nil {
			return fmt.Errorf("end maintenance: %w", err)
		}
		if !ended {
			fmt.Println("window already past its natural end, nothing to do")
			return nil
		}
		fmt.Println("maintenance window ended")
		return nil
	},
}

var testNotifyCmd = &cobra.Command{
	Use:   "test-notify CHECK_ID CONTACT_ID",
	Short: "Send a test notification to a contact's media",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(cmd)
		store := openStore(cfg)
		defer store.Close()
		c := buildCore(cfg, store)

		alerts, err := c.TestNotification(args[0], args[1])
		if err != nil {
			return fmt.Errorf("test notification: %w", err)
		}
		fmt.Printf("sent %d test alert(s)\n", len(alerts))
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("entity", "", "Entity name (required)")
	ingestCmd.Flags().String("check", "", "Check name, combined with entity as entity:check")
	ingestCmd.Flags().String("state", "", "Reported state, e.g. ok/warning/critical (required)")
	ingestCmd.Flags().String("summary", "", "Event summary")
	ingestCmd.Flags().String("type", types.EventTypeService, "Event type: service, action, or metric")

	ackCmd.Flags().Int("duration", 3600, "Acknowledgement duration in seconds")
	ackCmd.Flags().String("summary", "", "Acknowledgement summary")

	maintenanceScheduleCmd.Flags().Int("duration", 3600, "Maintenance window duration in seconds")
	maintenanceScheduleCmd.Flags().String("summary", "", "Maintenance summary")
	maintenanceCmd.AddCommand(maintenanceScheduleCmd)
	maintenanceCmd.AddCommand(maintenanceEndCmd)
}
