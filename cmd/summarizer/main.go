// File: cmd/summarizer/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opsmith/alert-summarizer/internal/config"
	"github.com/opsmith/alert-summarizer/internal/job"
	"github.com/opsmith/alert-summarizer/internal/mailer"
	"github.com/opsmith/alert-summarizer/internal/mailpit"
	"github.com/opsmith/alert-summarizer/internal/metrics"
	"github.com/opsmith/alert-summarizer/internal/report"
	"github.com/opsmith/alert-summarizer/internal/server"
	"github.com/opsmith/alert-summarizer/internal/storage"
	"github.com/opsmith/alert-summarizer/internal/summarize"
	"github.com/opsmith/alert-summarizer/pkg/utils"

	"github.com/sirupsen/logrus"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config     *config.Config
	logger     *logrus.Logger
	source     mailpit.Source
	summarizer *summarize.Summarizer
	renderer   *report.Renderer
	mailer     mailer.Mailer
	storage    storage.Storage
	metrics    *metrics.Manager
	runner     *job.Runner
	server     *server.HTTPServer
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	// Initialize logger
	if err := app.initializeLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize components
	if err := app.initializeComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger = utils.GetLogger()
	app.logger.Info("Logger initialized", map[string]interface{}{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	})

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	app.metrics = metrics.NewManager()

	if err := app.initializeSource(); err != nil {
		return fmt.Errorf("failed to initialize mailpit source: %w", err)
	}

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.initializeSummarizer()
	app.initializeMailer()
	app.initializeRunner()

	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeSource initializes the mailbox store client
func (app *Application) initializeSource() error {
	app.logger.Info("Initializing mailpit source", map[string]interface{}{
		"base_url": app.config.Mailpit.BaseURL,
	})

	app.source = mailpit.NewClient(&mailpit.ClientConfig{
		BaseURL:            app.config.Mailpit.BaseURL,
		Username:           app.config.Mailpit.Username,
		Password:           app.config.Mailpit.Password,
		RequestTimeout:     app.config.Mailpit.RequestTimeout,
		PageLimit:          app.config.Mailpit.PageLimit,
		InsecureSkipVerify: app.config.Mailpit.InsecureSkipVerify,
	}, app.metrics)

	return nil
}

// initializeStorage initializes the run-history storage layer
func (app *Application) initializeStorage() error {
	app.logger.Info("Initializing storage layer", map[string]interface{}{
		"type": app.config.Storage.Type,
	})

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             app.config.Storage.Type,
		ConnectionString: app.config.Storage.ConnectionString,
		MaxConnections:   app.config.Storage.MaxConnections,
		MaxIdleTime:      app.config.Storage.MaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.storage = store
	app.logger.Info("Storage layer initialized successfully")
	return nil
}

// initializeSummarizer initializes the generative summarizer
func (app *Application) initializeSummarizer() {
	var client summarize.GenerativeClient
	if app.config.AI.APIKey != "" {
		client = summarize.NewGeminiClient(&summarize.GeminiConfig{
			BaseURL:        app.config.AI.BaseURL,
			APIKey:         app.config.AI.APIKey,
			Model:          app.config.AI.Model,
			RequestTimeout: app.config.AI.RequestTimeout,
		})
	} else {
		app.logger.Warn("No AI API key configured, reports will use the fallback tier")
	}

	app.summarizer = summarize.NewSummarizer(client, app.config.AI.MaxBodyChars)
	app.renderer = report.NewRenderer()
}

// initializeMailer initializes the SMTP report mailer
func (app *Application) initializeMailer() {
	app.mailer = mailer.NewSMTPMailer(&mailer.SMTPConfig{
		Host:               app.config.SMTP.Host,
		Port:               app.config.SMTP.Port,
		Username:           app.config.SMTP.Username,
		Password:           app.config.SMTP.Password,
		FromEmail:          app.config.SMTP.FromEmail,
		FromName:           app.config.SMTP.FromName,
		ToEmails:           app.config.SMTP.ToEmails,
		UseTLS:             app.config.SMTP.UseTLS,
		UseStartTLS:        app.config.SMTP.UseStartTLS,
		InsecureSkipVerify: app.config.SMTP.InsecureSkipVerify,
		Timeout:            app.config.SMTP.Timeout,
		AttachJSON:         app.config.Report.AttachJSON,
	}, app.renderer.RenderText)
}

// initializeRunner initializes the daily job runner
func (app *Application) initializeRunner() {
	app.runner = job.NewRunner(
		&job.RunnerConfig{
			Enabled:      app.config.Report.Enabled,
			DailyAt:      app.config.Report.DailyAt,
			WindowPolicy: app.config.Report.WindowPolicy,
		},
		app.source,
		app.summarizer,
		app.renderer,
		app.mailer,
		app.storage,
		app.metrics,
	)
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	app.logger.Info("Initializing HTTP server")

	serverCfg := &server.ServerConfig{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
	}

	var err error
	app.server, err = server.NewHTTPServer(serverCfg, app.source, app.summarizer, app.runner, app.mailer, app.storage, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.Info("HTTP server initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.Info("Starting Alert Summarizer", map[string]interface{}{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	})

	// Start HTTP server
	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// Start daily job scheduler
	if err := app.runner.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start daily job scheduler: %w", err)
	}

	app.logger.Info("Alert Summarizer started successfully", map[string]interface{}{
		"server_address":  fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"mailpit_url":     app.config.Mailpit.BaseURL,
		"daily_at":        app.config.Report.DailyAt,
		"window_policy":   app.config.Report.WindowPolicy,
		"report_enabled":  app.config.Report.Enabled,
		"recipient_count": len(app.config.SMTP.ToEmails),
	})

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping Alert Summarizer")

	// Cancel context to stop all components
	app.cancel()

	// Stop components in reverse order
	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.Error("Failed to stop HTTP server", map[string]interface{}{"error": err})
		}
	}

	if app.runner != nil {
		app.runner.Stop()
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.Error("Failed to close storage", map[string]interface{}{"error": err})
		}
	}

	app.logger.Info("Alert Summarizer stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "summarizer",
	Short:   "Alert Email Summarizer",
	Long:    `A daily alert digest service that fetches alert emails from a Mailpit mailbox, classifies them by source and severity, and delivers an AI-generated summary report.`,
	Version: AppVersion,
	RunE:    runSummarizer,
}

// runSummarizer is the main command to run the summarizer service
func runSummarizer(cmd *cobra.Command, args []string) error {
	// Load configuration
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Create application
	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Set up signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	// Start application
	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Wait for shutdown signal
	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	// Stop application
	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// runCmd runs a single daily summary and exits
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one daily summary and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		app, err := NewApplication(cfg)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		defer app.Stop()

		var targetDate *time.Time
		if dateStr, _ := cmd.Flags().GetString("date"); dateStr != "" {
			parsed, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
			if err != nil {
				return fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", dateStr, err)
			}
			targetDate = &parsed
		}

		result, err := app.runner.Trigger(cmd.Context(), targetDate, job.TriggerManual)
		if err != nil {
			return fmt.Errorf("daily summary failed: %w", err)
		}

		fmt.Printf("Daily summary completed: %d alerts, %s report (%s)\n",
			result.AlertsProcessed, result.ReportTier, result.Duration.Round(time.Millisecond))
		return nil
	},
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Alert Summarizer %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Mailpit: %s\n", cfg.Mailpit.BaseURL)
		fmt.Printf("AI model: %s\n", cfg.AI.Model)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Recipients: %d\n", len(cfg.SMTP.ToEmails))

		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing Alert Summarizer connectivity...")
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		// Test the mailbox store
		fmt.Printf("Testing Mailpit connection to %s...\n", cfg.Mailpit.BaseURL)
		source := mailpit.NewClient(&mailpit.ClientConfig{
			BaseURL:            cfg.Mailpit.BaseURL,
			Username:           cfg.Mailpit.Username,
			Password:           cfg.Mailpit.Password,
			RequestTimeout:     cfg.Mailpit.RequestTimeout,
			PageLimit:          cfg.Mailpit.PageLimit,
			InsecureSkipVerify: cfg.Mailpit.InsecureSkipVerify,
		}, nil)
		if err := source.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach Mailpit: %w", err)
		}
		fmt.Println("✓ Mailpit connection successful")

		// Test storage
		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&storage.StorageConfig{
			Type:             cfg.Storage.Type,
			ConnectionString: cfg.Storage.ConnectionString,
			MaxConnections:   cfg.Storage.MaxConnections,
			MaxIdleTime:      cfg.Storage.MaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("✓ Storage connection successful")

		// Test SMTP
		fmt.Printf("Testing SMTP connection to %s:%d...\n", cfg.SMTP.Host, cfg.SMTP.Port)
		sender := mailer.NewSMTPMailer(&mailer.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			FromEmail:          cfg.SMTP.FromEmail,
			FromName:           cfg.SMTP.FromName,
			ToEmails:           cfg.SMTP.ToEmails,
			UseTLS:             cfg.SMTP.UseTLS,
			UseStartTLS:        cfg.SMTP.UseStartTLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
			Timeout:            cfg.SMTP.Timeout,
		}, nil)
		if err := sender.TestConnection(ctx); err != nil {
			return fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		fmt.Println("✓ SMTP connection successful")

		if cfg.AI.APIKey == "" {
			fmt.Println("! No AI API key configured, reports will use the fallback tier")
		}

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	// Add persistent flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	// Add subcommands
	runCmd.Flags().String("date", "", "report date (YYYY-MM-DD), defaults to the window policy")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
