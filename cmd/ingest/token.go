package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/token"
)

var tokenFlags struct {
	role string
}

var tokenCmd = &cobra.Command{
	Use:   "token [subject]",
	Short: "Issue a service token for the HTTP API",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenFlags.role, "role", "r", token.RoleReader, "token role: reader or admin")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if tokenFlags.role != token.RoleReader && tokenFlags.role != token.RoleAdmin {
		return errors.New("role must be reader or admin")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret is not set")
	}
	signed, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenExpireHours).GenerateToken(args[0], tokenFlags.role)
	if err != nil {
		return err
	}
	cmd.Println(signed)
	return nil
}
