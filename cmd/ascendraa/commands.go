package main

import (
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/ascendraa/ascendraa-go/pkg/billing"
)

var (
	flagAsFeature bool
	flagAsEvent   bool

	flagValue    float64
	flagMetadata []string

	flagAmount      float64
	flagEmail       string
	flagName        string
	flagPhone       string
	flagCurrency    string
	flagCallbackURL string
)

// refFromArg resolves the positional identifier into a Ref. By default the
// legacy hyphen rule applies; --feature and --event force the variant.
func refFromArg(arg string) (billing.Ref, error) {
	if flagAsFeature && flagAsEvent {
		return billing.Ref{}, fmt.Errorf("--feature and --event are mutually exclusive")
	}
	if flagAsFeature {
		return billing.FeatureRef(arg), nil
	}
	if flagAsEvent {
		return billing.EventRef(arg), nil
	}
	return billing.ParseRef(arg), nil
}

var checkCmd = &cobra.Command{
	Use:   "check <feature-id|event-name>",
	Short: "Check feature access or event balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := refFromArg(args[0])
		if err != nil {
			return err
		}
		client, err := newSDK()
		if err != nil {
			return err
		}
		result, err := client.Check(cmd.Context(), ref)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage <feature-id|event-name>",
	Short: "Show current usage and balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := refFromArg(args[0])
		if err != nil {
			return err
		}
		client, err := newSDK()
		if err != nil {
			return err
		}
		result, err := client.GetUsage(cmd.Context(), ref)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var trackCmd = &cobra.Command{
	Use:   "track <feature-id|event-name>",
	Short: "Record an incremental usage event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := refFromArg(args[0])
		if err != nil {
			return err
		}
		metadata, err := parseMetadata(flagMetadata)
		if err != nil {
			return err
		}
		client, err := newSDK()
		if err != nil {
			return err
		}
		result, err := client.Track(cmd.Context(), ref, flagValue, metadata)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var setUsageCmd = &cobra.Command{
	Use:   "set-usage <feature-id|event-name>",
	Short: "Overwrite usage with an absolute value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := refFromArg(args[0])
		if err != nil {
			return err
		}
		metadata, err := parseMetadata(flagMetadata)
		if err != nil {
			return err
		}
		client, err := newSDK()
		if err != nil {
			return err
		}
		result, err := client.SetUsage(cmd.Context(), ref, flagValue, metadata)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var customerCmd = &cobra.Command{
	Use:   "customer <customer-id>",
	Short: "Fetch a customer record (requires business credentials)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newSDK()
		if err != nil {
			return err
		}
		result, err := client.GetCustomer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout <plan-id>",
	Short: "Create a checkout session and print the authorization URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		planID := args[0]
		if _, err := ulid.Parse(planID); err != nil {
			// The server is the validator; a malformed ULID is usually a
			// copy/paste mistake worth flagging early.
			logger.Warn().Str("plan_id", planID).Msg("plan id does not look like a ULID")
		}

		client, err := newSDK()
		if err != nil {
			return err
		}
		session, err := client.CreateCheckout(cmd.Context(), planID, flagAmount, &billing.CheckoutOptions{
			Email:       flagEmail,
			Name:        flagName,
			Phone:       flagPhone,
			Currency:    flagCurrency,
			CallbackURL: flagCallbackURL,
		})
		if err != nil {
			return err
		}
		return printJSON(session)
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke [subscription-id]",
	Short: "Revoke one subscription, or all active subscriptions if no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subscriptionID := ""
		if len(args) == 1 {
			subscriptionID = args[0]
		}
		client, err := newSDK()
		if err != nil {
			return err
		}
		result, err := client.RevokeSubscription(cmd.Context(), subscriptionID)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{checkCmd, usageCmd, trackCmd, setUsageCmd} {
		cmd.Flags().BoolVar(&flagAsFeature, "feature", false, "treat the identifier as a feature id")
		cmd.Flags().BoolVar(&flagAsEvent, "event", false, "treat the identifier as an event name")
	}
	for _, cmd := range []*cobra.Command{trackCmd, setUsageCmd} {
		cmd.Flags().Float64Var(&flagValue, "value", 1, "usage value")
		cmd.Flags().StringArrayVar(&flagMetadata, "meta", nil, "metadata as key=value, repeatable")
	}

	checkoutCmd.Flags().Float64Var(&flagAmount, "amount", 1, "amount to charge (minimum 1, validated server-side)")
	checkoutCmd.Flags().StringVar(&flagEmail, "email", "", "customer email")
	checkoutCmd.Flags().StringVar(&flagName, "name", "", "customer name")
	checkoutCmd.Flags().StringVar(&flagPhone, "phone", "", "customer phone")
	checkoutCmd.Flags().StringVar(&flagCurrency, "currency", "", "currency code")
	checkoutCmd.Flags().StringVar(&flagCallbackURL, "callback-url", "", "redirect URL after checkout")

	rootCmd.AddCommand(checkCmd, usageCmd, trackCmd, setUsageCmd, customerCmd, checkoutCmd, revokeCmd)
}
