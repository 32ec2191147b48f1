package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ascendraa/ascendraa-go/internal/logging"
	"github.com/ascendraa/ascendraa-go/pkg/billing"
	"github.com/ascendraa/ascendraa-go/pkg/sdk"
)

var (
	flagAPIURL        string
	flagPublicKey     string
	flagCustomerToken string
	flagLogLevel      string
	flagLogFormat     string

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ascendraa",
	Short: "Command-line client for the Ascendraa usage-based billing API",
	Long: `Command-line client for the Ascendraa usage-based billing API.

Credentials come from flags or from the environment (ASCENDRAA_API_URL,
ASCENDRAA_PUBLIC_KEY, ASCENDRAA_CUSTOMER_TOKEN). A .env file in the working
directory is loaded if present.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Missing .env is the normal case.
		_ = godotenv.Load()
		logger = logging.Init(logging.Config{
			Level:     flagLogLevel,
			Format:    flagLogFormat,
			Component: "ascendraa-cli",
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "billing API base URL (env ASCENDRAA_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagPublicKey, "public-key", "", "public key, pk_... (env ASCENDRAA_PUBLIC_KEY)")
	rootCmd.PersistentFlags().StringVar(&flagCustomerToken, "customer-token", "", "customer token, cat_... (env ASCENDRAA_CUSTOMER_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "auto", "log format: json, console, auto")
}

func resolveSetting(flagValue, envName string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envName)
}

func billingConfig() billing.Config {
	return billing.Config{
		APIURL:        resolveSetting(flagAPIURL, "ASCENDRAA_API_URL"),
		PublicKey:     resolveSetting(flagPublicKey, "ASCENDRAA_PUBLIC_KEY"),
		CustomerToken: resolveSetting(flagCustomerToken, "ASCENDRAA_CUSTOMER_TOKEN"),
	}
}

func newSDK() (*sdk.SDK, error) {
	return sdk.New(billingConfig(), sdk.WithLogger(logger))
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}

// parseMetadata turns repeated key=value flags into a metadata map.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}
