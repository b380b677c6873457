package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkravets/newsdrop/internal/app"
	"github.com/mkravets/newsdrop/internal/config"
	"github.com/mkravets/newsdrop/internal/digest"
	"github.com/mkravets/newsdrop/internal/feed"
	"github.com/mkravets/newsdrop/internal/gemini"
	"github.com/mkravets/newsdrop/internal/logger"
	"github.com/mkravets/newsdrop/internal/ratelimit"
	"github.com/mkravets/newsdrop/internal/scraper"
	"github.com/mkravets/newsdrop/internal/sources"
	"github.com/mkravets/newsdrop/internal/state"
	"github.com/mkravets/newsdrop/internal/telegram"
)

var version = "dev"

var flagOnce bool

var rootCmd = &cobra.Command{
	Use:   "newsdrop",
	Short: "Polls news feeds and pushes major items to a Telegram chat",
	RunE:  runNotifier,

	SilenceUsage: true,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate bot credentials and send a test message",
	RunE:  runCheck,

	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("newsdrop %s\n", version)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&flagOnce, "once", false, "run a single cycle and exit")
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	logger.Init()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runNotifier(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	registry := sources.Default()
	if cfg.SourcesFile != "" {
		registry, err = sources.Load(cfg.SourcesFile)
		if err != nil {
			return fmt.Errorf("loading sources file: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	composer := &digest.Composer{
		Limiter:  ratelimit.NewDailyLimiter(cfg.MaxAISummariesPerDay),
		TZName:   cfg.TZName,
		MaxItems: cfg.AISummaryMaxItems,
	}
	if cfg.GeminiAPIKey != "" {
		ai, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.AISummaryModel)
		if err != nil {
			logger.Warn("gemini client unavailable, rule summaries only", "error", err)
		} else {
			defer ai.Close()
			composer.AI = ai
		}
	}

	var imageScraper app.ImageScraper
	if cfg.FetchArticleImage {
		imageScraper = scraper.New()
	}

	if os.Getenv("ENABLE_HTTP_MONITORING") == "true" {
		go startMonitoringServer()
	}

	a := app.New(
		cfg,
		registry,
		state.NewStore(cfg.StateFile),
		telegram.NewClient(cfg.TelegramToken, cfg.TelegramChatID),
		feed.NewFetcher(),
		imageScraper,
		composer,
	)
	a.RunLoop(ctx, flagOnce)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client := telegram.NewClient(cfg.TelegramToken, cfg.TelegramChatID)

	username, err := client.GetMe()
	if err != nil {
		return fmt.Errorf("getMe failed: %w", err)
	}
	if err := client.SendMessage("✅ newsdrop delivery test"); err != nil {
		return fmt.Errorf("test message failed: %w", err)
	}

	fmt.Printf("bot @%s is reachable, test message sent\n", username)
	return nil
}
