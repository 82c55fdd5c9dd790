package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/jwt"
)

var tokenID jwt.Identity

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Genera un Bearer token firmado con JWT_SECRET (entornos de prueba)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.App.Env == "production" {
			return errors.New("token: no disponible con APP_ENV=production")
		}
		tok, err := jwt.Generate(cfg.JWT.Secret, tokenID, cfg.JWT.Issuer, cfg.JWT.Expiration)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenID.AgentCode, "agent", "", "agent_code")
	tokenCmd.Flags().StringVar(&tokenID.CompanyCode, "company", "", "company_code")
	tokenCmd.Flags().StringVar(&tokenID.Role, "role", jwt.RoleAgent, "agent | operator | admin")
	_ = tokenCmd.MarkFlagRequired("agent")
	_ = tokenCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(tokenCmd)
}
