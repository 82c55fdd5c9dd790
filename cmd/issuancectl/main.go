// issuancectl tareas de operación del servicio de emisión: migraciones, barrido manual,
// consulta de pólizas y tokens de desarrollo.
//
// Uso:
//
//	issuancectl migrate up
//	issuancectl sweep once
//	issuancectl policy check POL-1 --registration AB-123-CD
//	issuancectl token --agent AG7 --company C001 --role agent
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/config"
	"github.com/VenomCocytus/a-certify-link-backend-sub002/pkg/logger"
)

var (
	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "issuancectl",
	Short:         "Herramientas de operación del servicio de emisión de certificados",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level, _ := cmd.Flags().GetString("log-level")
		if level == "" {
			level = cfg.App.LogLevel
		}
		log = logger.New(logger.Config{Env: cfg.App.Env, Level: level, Output: os.Stderr})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "nivel de log (por defecto LOG_LEVEL)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// printJSON salida legible por máquina (para jq).
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
