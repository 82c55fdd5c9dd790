package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/internal/infrastructure/postgres"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migraciones del esquema PostgreSQL",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Aplica las migraciones pendientes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postgres.MigrateUp(cfg.DB.ConnectionString()); err != nil {
			return err
		}
		return printVersion()
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revierte migraciones (--steps 0 revierte todas)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := postgres.MigrateDown(cfg.DB.ConnectionString(), migrateSteps); err != nil {
			return err
		}
		return printVersion()
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Muestra la versión aplicada",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printVersion()
	},
}

func printVersion() error {
	v, dirty, err := postgres.MigrationVersion(cfg.DB.ConnectionString())
	if err != nil {
		return err
	}
	fmt.Printf("versión %d (dirty=%t)\n", v, dirty)
	return nil
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "cantidad de migraciones a revertir")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}
