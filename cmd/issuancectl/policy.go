package main

import (
	"github.com/spf13/cobra"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/certificate"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/domain/entity"
)

var (
	policyRegistration string
	policyChassis      string
	policyLimit        int
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Consultas al Registry de pólizas",
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <policy-number>",
	Short: "Evalúa si la póliza es apta para emitir y lista las reglas incumplidas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		out, err := rt.orch.CheckPolicy(cmd.Context(), args[0], certificate.CrossCheck{
			RegistrationNumber: policyRegistration,
			ChassisNumber:      policyChassis,
		})
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var policySearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Busca pólizas por matrícula o chasis",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		out, err := rt.orch.SearchPolicies(cmd.Context(), entity.RegistrySearchCriteria{
			RegistrationNumber: policyRegistration,
			ChassisNumber:      policyChassis,
			Limit:              policyLimit,
		})
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	for _, c := range []*cobra.Command{policyCheckCmd, policySearchCmd} {
		c.Flags().StringVarP(&policyRegistration, "registration", "r", "", "matrícula")
		c.Flags().StringVar(&policyChassis, "chassis", "", "número de chasis")
	}
	policySearchCmd.Flags().IntVar(&policyLimit, "limit", 20, "tamaño de página")
	policyCmd.AddCommand(policyCheckCmd, policySearchCmd)
	rootCmd.AddCommand(policyCmd)
}
