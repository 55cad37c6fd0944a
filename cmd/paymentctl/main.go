// Command paymentctl runs operational tasks against the payments database.
package main

import (
	"fmt"
	"os"

	"scancodes/config"
	"scancodes/internal/database"
	"scancodes/internal/repository"
	"scancodes/internal/service"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operate the payment gateway and ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(ratesCmd())
	rootCmd.AddCommand(convertCmd())
	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what most commands need: configuration, a logger and a migrated
// database.
type env struct {
	cfg *config.Config
	log *logrus.Logger
	db  *gorm.DB
}

func loadEnv(withDB bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: config.NewLogger(cfg.Log)}
	if !withDB {
		return e, nil
	}
	e.db, err = database.NewDB(&cfg.Database, database.GormLogLevel(e.log.GetLevel()))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.AutoMigrate(e.db); err != nil {
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return e, nil
}

func (e *env) settings() *service.SettingsService {
	return service.NewSettingsService(repository.NewSettingRepository(e.db), e.cfg, e.log)
}
