package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	adminEmail    string
	adminName     string
	adminPassword string
)

func init() {
	rootCmd.AddCommand(createAdminCmd)
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "Admin email (required)")
	createAdminCmd.Flags().StringVar(&adminName, "name", "", "Display name, used as the quote preparer")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "Password; defaults to $ADMIN_PASSWORD")
	_ = createAdminCmd.MarkFlagRequired("email")
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin user or reset an existing one's password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := adminPassword
		if password == "" {
			password = os.Getenv("ADMIN_PASSWORD")
		}
		if password == "" {
			return fmt.Errorf("--password or ADMIN_PASSWORD is required")
		}
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()
		u, err := a.auth.CreateAdmin(cmd.Context(), adminEmail, adminName, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "admin %s ready (id %s)\n", u.Email, u.ID)
		return nil
	},
}
