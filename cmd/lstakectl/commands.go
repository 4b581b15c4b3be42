package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"liquidstake/crypto"
	"liquidstake/native/liquidstake"
	"liquidstake/rpc"
	"liquidstake/rpc/middleware"
)

const (
	defaultEndpoint = "http://127.0.0.1:8645"
	endpointEnv     = "LSTAKE_RPC_URL"
	tokenEnv        = "LSTAKE_TOKEN"
)

type globalOptions struct {
	endpoint string
	token    string
}

func (o *globalOptions) client() *rpc.Client {
	return rpc.NewClient(o.endpoint, o.token)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "lstakectl",
		Short:         "Operate the liquid staking pool over JSON-RPC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.endpoint, "rpc", envOr(endpointEnv, defaultEndpoint), "JSON-RPC endpoint")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv(tokenEnv), "bearer token identifying the caller")

	root.AddCommand(
		amountCommand(opts, "stake <amount>", "Deposit base asset and mint derivative", "lstake_addStake"),
		amountCommand(opts, "redeem <amount>", "Burn derivative and schedule a withdrawal", "lstake_redeemStake"),
		withdrawCommand(opts),
		nominateCommand(opts),
		queryCommand(opts, "info", "Show pool state", "lstake_poolInfo", false),
		queryCommand(opts, "tally", "Show the current nomination tally", "lstake_tally", false),
		queryCommand(opts, "redemptions [account]", "List pending redemptions", "lstake_redemptions", true),
		queryCommand(opts, "balance [account]", "Show ledger balances", "lstake_balance", true),
		eventsCommand(opts),
		tokenCommand(),
		deriveCommand(),
	)
	return root
}

func printJSON(w io.Writer, value interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func amountCommand(opts *globalOptions, use, short, method string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result rpc.OperationResult
			params := map[string]string{"amount": strings.TrimSpace(args[0])}
			if err := opts.client().Call(cmd.Context(), method, params, &result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func withdrawCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <era>",
		Short: "Collect a matured redemption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			era, err := strconv.ParseUint(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid era %q: %w", args[0], err)
			}
			var result rpc.OperationResult
			if err := opts.client().Call(cmd.Context(), "lstake_withdrawStake", map[string]uint64{"era": era}, &result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

// parseSlate reads validator=weight pairs.
func parseSlate(args []string) ([]rpc.NominationParam, error) {
	out := make([]rpc.NominationParam, 0, len(args))
	for _, arg := range args {
		validator, weight, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(validator) == "" || strings.TrimSpace(weight) == "" {
			return nil, fmt.Errorf("nomination %q must be validator=weight", arg)
		}
		if _, err := crypto.ParseAccount(strings.TrimSpace(validator)); err != nil {
			return nil, fmt.Errorf("nomination %q: %w", arg, err)
		}
		out = append(out, rpc.NominationParam{Validator: strings.TrimSpace(validator), Weight: strings.TrimSpace(weight)})
	}
	return out, nil
}

func nominateCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "nominate <validator=weight>...",
		Short: "Vote derivative weight for validators in the open window",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slate, err := parseSlate(args)
			if err != nil {
				return err
			}
			var result rpc.OperationResult
			params := map[string]interface{}{"nominations": slate}
			if err := opts.client().Call(cmd.Context(), "lstake_nominate", params, &result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func queryCommand(opts *globalOptions, use, short, method string, takesAccount bool) *cobra.Command {
	args := cobra.NoArgs
	if takesAccount {
		args = cobra.MaximumNArgs(1)
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			var params interface{}
			if len(argv) == 1 {
				params = map[string]string{"account": strings.TrimSpace(argv[0])}
			}
			var result json.RawMessage
			if err := opts.client().Call(cmd.Context(), method, params, &result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func eventsCommand(opts *globalOptions) *cobra.Command {
	var eventType string
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List archived pool events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var result []rpc.EventResult
			params := map[string]interface{}{"type": eventType, "limit": limit}
			if err := opts.client().Call(cmd.Context(), "lstake_events", params, &result); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of events")
	return cmd
}

func tokenCommand() *cobra.Command {
	var secret, issuer, account string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			caller, err := crypto.ParseAccount(strings.TrimSpace(account))
			if err != nil {
				return fmt.Errorf("invalid account: %w", err)
			}
			token, err := middleware.IssueToken(secret, issuer, caller, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("LSTAKE_RPC_JWT_SECRET"), "HS256 signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", os.Getenv("LSTAKE_RPC_JWT_ISSUER"), "token issuer")
	cmd.Flags().StringVar(&account, "account", "", "bech32 account the token authenticates")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, zero for no expiry")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func deriveCommand() *cobra.Command {
	defaults := liquidstake.DefaultParams()
	var stashSeed, controllerSeed string
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the pool stash and controller accounts for a pair of seeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := liquidstake.DefaultParams()
			params.StashSeed = stashSeed
			params.ControllerSeed = controllerSeed
			stash, controller, err := liquidstake.PoolAccounts(params)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"stash":      crypto.FormatAccount(stash),
				"controller": crypto.FormatAccount(controller),
			})
		},
	}
	cmd.Flags().StringVar(&stashSeed, "stash-seed", defaults.StashSeed, "stash account seed")
	cmd.Flags().StringVar(&controllerSeed, "controller-seed", defaults.ControllerSeed, "controller account seed")
	return cmd
}
