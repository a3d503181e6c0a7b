package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/levenlabs/go-lflag"

	"github.com/ratewriter/ratewriter/pkg/log"
	"github.com/ratewriter/ratewriter/pkg/notify"
	"github.com/ratewriter/ratewriter/pkg/publish"
	"github.com/ratewriter/ratewriter/pkg/tariff"
	"github.com/ratewriter/ratewriter/pkg/teslemetry"
	"github.com/ratewriter/ratewriter/pkg/types"
)

// ratesFile is the on-disk input: a plan name plus the rate windows to push.
type ratesFile struct {
	PlanName string             `json:"plan_name"`
	Rates    []types.RatePeriod `json:"rates"`
}

func main() {
	factory := teslemetry.Configured()
	siteID := lflag.RequiredString("site", "Energy site ID to push to")
	token := lflag.String("token", "", "Teslemetry API token (not needed with -dry-run)")
	ratesPath := lflag.RequiredString("rates-file", "Path to the rates JSON file")
	dryRun := lflag.Bool("dry-run", false, "Build and print the tariff document without sending it")
	lflag.Configure()

	ctx := context.Background()

	data, err := os.ReadFile(*ratesPath)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to read rates file", "error", err)
		os.Exit(1)
	}
	var in ratesFile
	if err := json.Unmarshal(data, &in); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to parse rates file", "error", err)
		os.Exit(1)
	}

	if *dryRun {
		doc, diags, err := tariff.Build(in.Rates, in.PlanName)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "invalid rate schedule", "error", err)
			os.Exit(1)
		}
		for _, d := range diags {
			log.Ctx(ctx).WarnContext(ctx, d.Message, slog.String("slot", d.Slot))
		}
		printJSON(ctx, doc)
		return
	}

	if *token == "" {
		log.Ctx(ctx).ErrorContext(ctx, "token is required to push")
		os.Exit(1)
	}

	client := factory.ClientFor(*token)
	sink := publish.SinkFunc(func(ctx context.Context, res types.PushResult) {
		printJSON(ctx, res)
	})
	orch := publish.NewOrchestrator(notify.NewRegistry(), sink, nil)

	site := types.SiteConfig{SiteID: *siteID}
	res := orch.Push(ctx, client, site, in.Rates, in.PlanName)
	if !res.Success {
		os.Exit(1)
	}
}

func printJSON(ctx context.Context, v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to marshal output", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
