package main

import (
	"fmt"
	"math/big"
	"text/tabwriter"

	"fundportal/internal/portal"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the session in sync with the node until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		p, err := portal.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer p.Close()

		keys, cancel := p.Session.Watch(64)
		defer cancel()
		go func() {
			for key := range keys {
				v, _ := p.Session.Get(key)
				log.Debug("session changed", zap.String("key", key), zap.Any("value", v))
			}
		}()

		return p.Watch(ctx)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run the network checks once and print the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return withPortal(ctx, func(p *portal.Portal) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "provider\t%s\n", p.Store.State().Provider)
			for _, key := range p.Session.Keys() {
				v, _ := p.Session.Get(key)
				if wei, ok := v.(*big.Int); ok {
					v = decimal.NewFromBigInt(wei, -18).String() + " ETH"
				}
				fmt.Fprintf(w, "%s\t%v\n", key, v)
			}
			return w.Flush()
		})
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance SYMBOL [OWNER]",
	Short: "Print the token balance of an account",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		owner := ""
		if len(args) == 2 {
			owner = args[1]
		}
		addr, err := parseAddress("owner", owner)
		if err != nil {
			return err
		}
		return withPortal(ctx, func(p *portal.Portal) error {
			bal, err := p.Assets.GetBalance(ctx, args[0], addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", bal, args[0])
			return nil
		})
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer SYMBOL TO QUANTITY",
	Short: "Transfer tokens to an address",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		to, err := parseAddress("to", args[1])
		if err != nil {
			return err
		}
		quantity, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
		fromFlag, _ := cmd.Flags().GetString("from")
		from, err := parseAddress("from", fromFlag)
		if err != nil {
			return err
		}

		return withPortal(ctx, func(p *portal.Portal) error {
			ok, err := p.Assets.TransferTo(ctx, args[0], to, quantity, from)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("transfer mined without a Transfer event")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transferred %s %s to %s\n", quantity, args[0], to.Hex())
			return nil
		})
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe FUND SHARES OFFERED",
	Short: "Request a subscription to a fund",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		fund, err := parseAddress("fund", args[0])
		if err != nil {
			return err
		}
		shares, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("shares: %w", err)
		}
		offered, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("offered: %w", err)
		}
		var incentive decimal.NullDecimal
		if s, _ := cmd.Flags().GetString("incentive"); s != "" {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return fmt.Errorf("incentive: %w", err)
			}
			incentive = decimal.NewNullDecimal(d)
		}
		subFlag, _ := cmd.Flags().GetString("subscriber")
		subscriber, err := parseAddress("subscriber", subFlag)
		if err != nil {
			return err
		}

		return withPortal(ctx, func(p *portal.Portal) error {
			sub, err := p.Participation.Subscribe(ctx, fund, shares, offered, incentive, subscriber)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "request %s: %s shares at %s\n",
				sub.ID, sub.NumShares, sub.AtTimestamp.Format("2006-01-02 15:04:05 MST"))
			return nil
		})
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List recent actions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")
		return withPortal(ctx, func(p *portal.Portal) error {
			actions, err := p.Journal.List(ctx, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tKIND\tSTATUS\tSYMBOL\tQUANTITY\tTARGET\tTX")
			for _, a := range actions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					a.CreatedAt.Format("2006-01-02 15:04:05"), a.Kind, a.Status, a.Symbol, a.Quantity, a.Target, a.TxHash)
			}
			return w.Flush()
		})
	},
}

func init() {
	transferCmd.Flags().String("from", "", "sending account, defaults to the selected account")
	subscribeCmd.Flags().String("incentive", "", "execution incentive in the quote token, defaults to 0.01")
	subscribeCmd.Flags().String("subscriber", "", "subscribing account, defaults to the selected account")
	journalCmd.Flags().Int("limit", 20, "number of actions to list")
}
