package cmd

import (
	"BUREAU/controllers/authctl"
	"BUREAU/models"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage operator accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an operator or admin account",
	RunE:  runUserCreate,
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().String("username", "", "Login name (required)")
	userCreateCmd.Flags().String("password", "", "Password, at least 6 characters (required)")
	userCreateCmd.Flags().String("role", models.RoleOperator, "admin or operator")
	userCreateCmd.Flags().Int("clearance", 1, "Clearance level")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("password")
}

func runUserCreate(cmd *cobra.Command, _ []string) error {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	role, _ := cmd.Flags().GetString("role")
	clearance, _ := cmd.Flags().GetInt("clearance")

	if len(password) < 6 {
		return errors.New("password must be at least 6 characters")
	}

	_, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	user, err := authctl.CreateUser(db, authctl.CreateUserPayload{
		Username:       username,
		Password:       password,
		Role:           role,
		ClearanceLevel: clearance,
	})
	if err != nil {
		return fmt.Errorf("failed to create user %q: %w", username, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (%s)\n", user.Role, user.Username, user.ID)
	return nil
}
