package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yanmasharski/kidlock-tv/internal/clock"
	"github.com/yanmasharski/kidlock-tv/internal/config"
	"github.com/yanmasharski/kidlock-tv/internal/ledger"
	"github.com/yanmasharski/kidlock-tv/internal/usagestats"
)

var (
	checkUsedMinutes int
	checkAtTime      string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check budget decisions interactively",
	Long:  `Check what enforcement decision kidlockd would make for a given usage figure or package.`,
}

var checkBudgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Check the remaining allowance",
	Long:  `Compute the remaining allowance against the stored budget for a hypothetical usage figure.`,
	Example: `  kidlockd -c config.yaml check budget --used 45
  kidlockd check budget --used 90 --at 18:30`,
	RunE: runCheckBudget,
}

var checkPackageCmd = &cobra.Command{
	Use:   "package PACKAGE",
	Short: "Check how a package is classified",
	Long:  `Check whether kidlockd would track, ignore, or never block a given package.`,
	Example: `  kidlockd check package com.example.game
  kidlockd check package com.android.systemui`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckPackage,
}

func init() {
	checkBudgetCmd.Flags().IntVar(&checkUsedMinutes, "used", 0, "Hypothetical minutes used today")
	checkBudgetCmd.Flags().StringVar(&checkAtTime, "at", "", "Time of day (HH:MM) - defaults to current time")

	checkCmd.AddCommand(checkBudgetCmd)
	checkCmd.AddCommand(checkPackageCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckBudget(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	at, err := parseCheckTime(checkAtTime)
	if err != nil {
		return err
	}

	clk := &clock.TestClock{CurrentTime: at}
	budgetLedger := ledger.New(store, clk, cfg.Budget.DefaultDailyLimitMinutes, logger)

	ctx := context.Background()
	breakdown, err := budgetLedger.Remaining(ctx, checkUsedMinutes, nil)
	if err != nil {
		return fmt.Errorf("failed to compute remaining time: %w", err)
	}
	limit, err := budgetLedger.DailyLimitMinutes(ctx)
	if err != nil {
		return fmt.Errorf("failed to read daily limit: %w", err)
	}
	blocking, err := budgetLedger.BlockingEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to read blocking state: %w", err)
	}

	printBudgetResult(at, checkUsedMinutes, limit, blocking, breakdown)
	return nil
}

func runCheckPackage(cmd *cobra.Command, args []string) error {
	pkg := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	deny := usagestats.NewDenyList(
		cfg.Monitor.SelfPackage,
		cfg.Monitor.LauncherPackage,
		cfg.Monitor.IgnoredPackages,
	)

	printPackageResult(pkg, cfg.Monitor.SelfPackage, deny)
	return nil
}

func printBudgetResult(at time.Time, used, limit int, blocking bool, breakdown ledger.RemainingBreakdown) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("BUDGET CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Check Time:      %s\n", at.Format("2006-01-02 15:04"))
	fmt.Printf("Used Today:      %d minutes\n", used)
	fmt.Printf("Daily Limit:     %d minutes\n", limit)
	fmt.Printf("Daily Remaining: %d minutes\n", breakdown.DailyRemaining)
	fmt.Printf("Bonus Remaining: %d minutes\n", breakdown.BonusRemaining)
	fmt.Printf("Total Remaining: %d minutes\n", breakdown.Total)
	fmt.Printf("Blocking:        %v\n", blocking)
	fmt.Println()

	cyan.Print("Decision:        ")
	switch {
	case breakdown.Total > 0:
		green.Println("ALLOW")
		fmt.Println("                 → Budgeted apps may run")
	case !blocking:
		green.Println("ALLOW (enforcement off)")
		fmt.Println("                 → Allowance is spent but blocking is disabled")
	default:
		red.Println("BLOCK")
		fmt.Println("                 → Budgeted apps will be blocked")
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

func printPackageResult(pkg, selfPackage string, deny *usagestats.DenyList) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("PACKAGE CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Package:    %s\n", pkg)
	fmt.Println()

	cyan.Print("Class:      ")
	switch {
	case pkg == selfPackage:
		green.Println("SELF")
		fmt.Println("            → The budget app itself, never tracked or blocked")
	case deny.IsSystemSurface(pkg):
		yellow.Println("SYSTEM SURFACE")
		fmt.Println("            → Ignored by usage accounting and enforcement")
	default:
		cyan.Println("BUDGETED")
		fmt.Println("            → Tracked against the daily allowance")
		fmt.Println("            → Blocked once the allowance is spent")
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// parseCheckTime parses the --at flag into today's date at that time
func parseCheckTime(timeStr string) (time.Time, error) {
	now := time.Now()
	if timeStr == "" {
		return now, nil
	}

	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("time must be in HH:MM format")
	}

	var hour, minute int
	if _, err := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid time: hour must be 0-23, minute must be 0-59")
	}

	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()), nil
}
