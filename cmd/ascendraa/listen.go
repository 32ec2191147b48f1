package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ascendraa/ascendraa-go/pkg/realtime"
)

var (
	flagCustomerID string
	flagAppKey     string
	flagWSHost     string
	flagWSPort     int
	flagWSTLS      bool
	flagEvents     []string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Subscribe to the customer's private channel and print events",
	RunE: func(cmd *cobra.Command, args []string) error {
		customerID := resolveSetting(flagCustomerID, "ASCENDRAA_CUSTOMER_ID")
		appKey := resolveSetting(flagAppKey, "REVERB_APP_KEY")

		bridge := realtime.New(realtime.Config{
			Enabled:       true,
			AppKey:        appKey,
			Host:          flagWSHost,
			Port:          flagWSPort,
			ForceTLS:      flagWSTLS,
			APIURL:        resolveSetting(flagAPIURL, "ASCENDRAA_API_URL"),
			CustomerID:    customerID,
			CustomerToken: resolveSetting(flagCustomerToken, "ASCENDRAA_CUSTOMER_TOKEN"),
		}, realtime.WithLogger(logger))

		events := flagEvents
		if len(events) == 0 {
			events = []string{
				realtime.EventUsageUpdated,
				realtime.EventBalanceUpdated,
				realtime.EventSubscriptionUpdated,
				realtime.EventTransactionCompleted,
			}
		}
		for _, name := range events {
			bridge.Listen(name, func(event realtime.Event) {
				if err := printJSON(map[string]any{"type": event.Type, "data": event.Data}); err != nil {
					logger.Error().Err(err).Msg("print event")
				}
			})
		}

		if err := bridge.Connect(cmd.Context()); err != nil {
			return err
		}
		defer bridge.Close()

		fmt.Fprintf(os.Stderr, "listening on %s, ctrl-c to stop\n", bridge.Channel())

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		select {
		case <-stop:
		case <-cmd.Context().Done():
		}

		bridge.LeaveChannel()
		return nil
	},
}

func init() {
	listenCmd.Flags().StringVar(&flagCustomerID, "customer-id", "", "customer id for the private channel (env ASCENDRAA_CUSTOMER_ID)")
	listenCmd.Flags().StringVar(&flagAppKey, "app-key", "", "Reverb application key (env REVERB_APP_KEY)")
	listenCmd.Flags().StringVar(&flagWSHost, "ws-host", "localhost", "websocket host")
	listenCmd.Flags().IntVar(&flagWSPort, "ws-port", 8080, "websocket port")
	listenCmd.Flags().BoolVar(&flagWSTLS, "ws-tls", false, "use wss")
	listenCmd.Flags().StringArrayVar(&flagEvents, "event", nil, "event name to listen for, repeatable (default: all billing events)")

	rootCmd.AddCommand(listenCmd)
}
