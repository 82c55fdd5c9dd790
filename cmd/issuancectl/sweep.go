package main

import (
	"github.com/spf13/cobra"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/application/issuance"
)

var sweepBatch int

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Barrido de reintentos",
}

var sweepOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Ejecuta una única pasada del barrido y muestra el resultado",
	Long: `Reintenta las solicitudes FAILED reintentables, consulta al Issuer las que siguen
en ISSUER_PROCESSING y purga las claves de idempotencia vencidas.

Examples:
  issuancectl sweep once
  issuancectl sweep once --batch 50 | jq '.Retried'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := buildDeps(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		sweepCfg := cfg.Sweep
		sweepCfg.Enabled = true
		if sweepBatch > 0 {
			sweepCfg.BatchSize = sweepBatch
		}
		report, err := issuance.NewSweeper(rt.orch, rt.repo, rt.store, sweepCfg, nil, log).RunOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

func init() {
	sweepOnceCmd.Flags().IntVar(&sweepBatch, "batch", 0, "máximo de solicitudes por pasada (por defecto SWEEP_BATCH_SIZE)")
	sweepCmd.AddCommand(sweepOnceCmd)
	rootCmd.AddCommand(sweepCmd)
}
