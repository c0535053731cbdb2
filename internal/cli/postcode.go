package cli

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"erp/ecommerce/quote-storefront/internal/shipping"
)

func init() {
	rootCmd.AddCommand(postcodeCmd)
}

var postcodeCmd = &cobra.Command{
	Use:   "postcode <postcode> [address...]",
	Short: "Show the delivery zone and shipping charge for a postcode",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d := shipping.ClassifyDelivery(args[0], strings.Join(args[1:], " "))
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	},
}
