package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rumor-ml/commons.systems/fintrack/internal/forecast"
	"github.com/rumor-ml/commons.systems/fintrack/internal/ledger"
	"github.com/rumor-ml/commons.systems/fintrack/internal/ofximport"
	"github.com/rumor-ml/commons.systems/fintrack/internal/server"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
	"github.com/rumor-ml/commons.systems/fintrack/internal/ui"
)

const (
	version = "0.1.0"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")
	projectID   = flag.String("project", "", "Firestore project ID (required)")
	credentials = flag.String("credentials", "", "Service account credentials file")
	policyFile  = flag.String("policy", "", "Forecasting policy YAML (default: embedded)")

	// Serve mode
	addr = flag.String("addr", ":8080", "API listen address")

	// Import mode
	importFile = flag.String("import", "", "OFX/QFX statement file to import")
	userFlag   = flag.String("user", "", "User ID for import/forecast modes")

	// Forecast mode
	forecastFlag  = flag.Bool("forecast", false, "Print a budget forecast and exit")
	forecastYear  = flag.Int("year", time.Now().UTC().Year(), "Forecast target year")
	forecastMonth = flag.Int("month", int(time.Now().UTC().Month()), "Forecast target month")
	applyFlag     = flag.Bool("apply", false, "Persist the forecasted budgets")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `fintrack - Personal finance tracking backend

Usage:
  fintrack [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Serve the API
  fintrack -project my-project

  # Import a bank statement for a user
  fintrack -project my-project -user uid123 -import statement.ofx

  # Print next month's forecast
  fintrack -project my-project -user uid123 -forecast -year 2026 -month 9

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("fintrack version %s\n", version)
		os.Exit(0)
	}

	if *projectID == "" {
		fmt.Fprintf(os.Stderr, "Error: -project flag is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		ui.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	switch {
	case *importFile != "":
		return runImport(ctx)
	case *forecastFlag:
		return runForecast(ctx)
	default:
		return runServe(ctx)
	}
}

func runServe(ctx context.Context) error {
	policy, err := loadPolicy()
	if err != nil {
		return err
	}
	srv, err := server.New(ctx, *projectID, *credentials, policy)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer srv.Close()

	ui.Header("Fintrack API")
	ui.Info(fmt.Sprintf("listening on %s", *addr))
	return http.ListenAndServe(*addr, srv.Handler())
}

func runImport(ctx context.Context) error {
	if *userFlag == "" {
		return fmt.Errorf("-user flag is required for import")
	}

	client, policy, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	f, err := os.Open(*importFile)
	if err != nil {
		return fmt.Errorf("failed to open statement file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, _ := f.Read(header)
	if !ofximport.CanImport(*importFile, header[:n]) {
		return fmt.Errorf("%s does not look like an OFX/QFX statement", *importFile)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind statement file: %w", err)
	}

	ui.Header("Importing Statement")
	ui.Step(1, 2, "Parsing and booking transactions")

	svc := ledger.NewService(client, policy.AlertThreshold)
	report, err := ofximport.NewImporter(svc).Import(ctx, *userFlag, f)
	if err != nil {
		return err
	}

	ui.Step(2, 2, "Done")
	ui.Success(fmt.Sprintf("booked %d expenses, %d incomes (%d skipped)",
		report.Expenses, report.Incomes, report.Skipped))
	return nil
}

func runForecast(ctx context.Context) error {
	if *userFlag == "" {
		return fmt.Errorf("-user flag is required for forecast")
	}

	client, policy, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	engine := forecast.NewEngine(client, policy)
	budgets, err := engine.Forecast(ctx, *userFlag, *forecastYear, *forecastMonth)
	if err != nil {
		return err
	}

	ui.Header(fmt.Sprintf("Budget Forecast %d-%02d", *forecastYear, *forecastMonth))
	for _, b := range budgets {
		ui.Info(fmt.Sprintf("%-24s limit %12s  confidence %.2f  save %.0f%%",
			b.CategoryName, ui.Money(b.Limit), b.Confidence, b.SuggestedSavingsRate*100))
	}

	if *applyFlag {
		applied, err := engine.Apply(ctx, *userFlag, budgets, false)
		if err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("persisted %d budgets", len(applied)))
	}
	return nil
}

func loadPolicy() (*forecast.Policy, error) {
	if *policyFile != "" {
		return forecast.LoadFromFile(*policyFile)
	}
	return forecast.LoadEmbedded()
}

func connect(ctx context.Context) (*store.Client, *forecast.Policy, error) {
	client, err := store.NewClient(ctx, *projectID, *credentials)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Firestore: %w", err)
	}
	policy, err := loadPolicy()
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return client, policy, nil
}
