package cli

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/miohtama/demeter/backtest"
	"github.com/miohtama/demeter/broker"
	"github.com/miohtama/demeter/config"
	"github.com/miohtama/demeter/journal"
	"github.com/miohtama/demeter/option"
	"github.com/miohtama/demeter/vault"
)

// newRunCmd replays the configured window with a passive hold strategy.
// Useful for validating datasets and measuring the market-only baseline;
// programmatic strategies use the backtest package directly.
func newRunCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a passive backtest over the configured window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rc.ConfigPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.LoadFromFile(rc.ConfigPath)
			if err != nil {
				return err
			}
			return runBacktest(cmd.Context(), rc, cfg)
		},
	}
	return cmd
}

func newInitCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Default().SaveToFile(out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "./demeter.yaml", "Output path")
	return cmd
}

// holdStrategy takes no action; the run measures pure market carry.
type holdStrategy struct {
	backtest.BaseStrategy
}

func runBacktest(ctx context.Context, rc *RootConfig, cfg *config.Config) error {
	start, end, err := cfg.Run.Window()
	if err != nil {
		return err
	}

	b := broker.New(cfg.Run.AllowNegativeBalance)
	tokens := make(map[string]broker.Token, len(cfg.Tokens))
	for _, tc := range cfg.Tokens {
		token := broker.NewToken(tc.Name, tc.Decimals)
		tokens[tc.Name] = token
		b.Assets().SetBalance(token, decimal.NewFromFloat(tc.Balance))
	}

	prices := &broker.PriceSeries{}

	if oc := cfg.Option; oc != nil {
		feeCfg := option.ETHConfig()
		if oc.Preset == "btc" {
			feeCfg = option.BTCConfig()
		}
		m := option.NewMarket(oc.Name, tokens[oc.Token], feeCfg)
		m.SetLogger(rc.Logger.Named(oc.Name))
		m.SetDataPath(cfg.Run.DataPath)
		if err := b.AddMarket(m); err != nil {
			return err
		}
		if err := m.LoadData(start, end); err != nil {
			return err
		}
		series, err := m.PricesFromData()
		if err != nil {
			return err
		}
		if err := prices.Merge(series); err != nil {
			return err
		}
	}

	if vc := cfg.Vault; vc != nil {
		m := vault.NewMarket(vc.Name, tokens[vc.Base], tokens[vc.Synth], nil)
		m.SetLogger(rc.Logger.Named(vc.Name))
		m.SetDataPath(cfg.Run.DataPath)
		if err := b.AddMarket(m); err != nil {
			return err
		}
		if err := m.LoadData(start, end); err != nil {
			return err
		}
		series, err := m.PricesFromData()
		if err != nil {
			return err
		}
		if err := prices.Merge(series); err != nil {
			return err
		}
	}

	runner := backtest.NewRunner(b, &holdStrategy{}, prices)
	runner.Logger = rc.Logger.Named("runner")
	if err := runner.Run(ctx); err != nil {
		return err
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	defer j.Close()
	if err := runner.Save(j); err != nil {
		return err
	}

	metrics, err := runner.Metrics()
	if err != nil {
		return err
	}
	fmt.Printf("window:       %s .. %s\n", metrics.Start, metrics.End)
	fmt.Printf("net value:    %s -> %s\n", metrics.InitialValue, metrics.FinalValue)
	fmt.Printf("total return: %.4f%%\n", metrics.TotalReturn*100)
	fmt.Printf("max drawdown: %.4f%%\n", metrics.MaxDrawdown*100)
	fmt.Printf("sharpe:       %.4f\n", metrics.SharpeRatio)
	fmt.Printf("actions:      %d\n", metrics.Actions)
	return nil
}

func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	default:
		return journal.NewCSV(jc.ActionsFile, jc.StatusFile)
	}
}
