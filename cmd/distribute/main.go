package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/civicledger/civicledger/internal/app"
	"github.com/civicledger/civicledger/internal/ledger"
	"github.com/civicledger/civicledger/internal/platform/db"
	"github.com/civicledger/civicledger/internal/refdata"
	"github.com/civicledger/civicledger/internal/salary"
)

func main() {
	var opts options
	flag.StringVar(&opts.FiscalYear, "fy", "", "fiscal year code, e.g. 2025-26")
	flag.StringVar(&opts.Fund, "fund", "", "fund code, e.g. GF")
	flag.StringVar(&opts.Account, "account", "", "salary expenditure account code")
	flag.StringVar(&opts.Amount, "amount", "", "total amount to distribute")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "print the plan without persisting budgets")
	flag.Parse()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	refs := refdata.NewRepository(pool)
	accounts := ledger.NewRepository(pool)
	dist := salary.NewDistributor(salary.NewRepository(pool))

	if err := run(ctx, opts, refs, accounts, dist, os.Stdout); err != nil {
		log.Fatalf("distribute: %v", err)
	}
}
