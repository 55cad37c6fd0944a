package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"scancodes/internal/auth"
	"scancodes/internal/domain"
	"scancodes/internal/models"
	"scancodes/internal/repository"
	"scancodes/internal/service"
	"scancodes/pkg/money"
	"scancodes/pkg/payment"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-verify payments that are still pending with the provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(true)
			if err != nil {
				return err
			}
			age, _ := cmd.Flags().GetDuration("older-than")
			if !cmd.Flags().Changed("older-than") {
				age = e.cfg.Payment.ReconcileAfter
			}
			limit, _ := cmd.Flags().GetInt("limit")

			ctx := cmd.Context()
			settings := e.settings()
			gc, err := settings.ActiveGateway(ctx)
			if err != nil {
				return err
			}
			gw, err := payment.DefaultRegistry().Gateway(gc,
				payment.WithClient(payment.NewClient(e.cfg.Payment.HTTPTimeout, e.cfg.Payment.RetryConfig(), e.log)),
				payment.WithLogger(e.log),
			)
			if err != nil {
				return err
			}
			manager, err := service.NewPaymentManager(e.db, gw, settings, service.WithManagerLogger(e.log))
			if err != nil {
				return err
			}
			report, err := service.NewReconcileService(repository.NewPaymentRepository(e.db), manager, e.log).Run(ctx, age, limit)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	cmd.Flags().Duration("older-than", 0, "Only payments created before now minus this duration (default PAYMENT_RECONCILE_AFTER)")
	cmd.Flags().IntP("limit", "n", 100, "Maximum payments to check")
	return cmd
}

func ratesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates [base]",
		Short: "Show exchange rates for a base currency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(false)
			if err != nil {
				return err
			}
			client := payment.NewClient(e.cfg.Payment.HTTPTimeout, e.cfg.Payment.RetryConfig(), e.log)
			rates := payment.NewRateService(e.cfg.Payment.ExchangeRateAPIURL, e.cfg.Payment.RateCacheTTL, client)

			only, _ := cmd.Flags().GetStringSlice("only")
			all, err := rates.Rates(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			codes := make([]string, 0, len(all))
			for code := range all {
				if len(only) == 0 || containsFold(only, code) {
					codes = append(codes, code)
				}
			}
			sort.Strings(codes)
			for _, code := range codes {
				fmt.Printf("%-4s %s\n", code, all[code].String())
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("only", nil, "Only print these currency codes")
	return cmd
}

func convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert [amount] [from] [to]",
		Short: "Convert an amount between currencies at the current rate",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := money.Quantize(args[0])
			if err != nil {
				return err
			}
			e, err := loadEnv(false)
			if err != nil {
				return err
			}
			client := payment.NewClient(e.cfg.Payment.HTTPTimeout, e.cfg.Payment.RetryConfig(), e.log)
			rates := payment.NewRateService(e.cfg.Payment.ExchangeRateAPIURL, e.cfg.Payment.RateCacheTTL, client)
			out, err := rates.Convert(cmd.Context(), amount, args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s = %s %s\n", money.String(amount), strings.ToUpper(args[1]), money.String(out), strings.ToUpper(args[2]))
			return nil
		},
	}
}

func gatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Show the active payment gateway with masked credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(true)
			if err != nil {
				return err
			}
			gc, err := e.settings().ActiveGateway(cmd.Context())
			if err != nil {
				return err
			}
			return printGateway(gc)
		},
	}

	set := &cobra.Command{
		Use:   "set [file.yaml]",
		Short: "Store gateway credentials from a YAML file in system settings",
		Long: `Store gateway credentials in system settings. The file uses the layout

  provider: flutterwave
  credentials:
    secret_key: FLWSECK-...
    secret_hash: my-hash

The running server picks the change up on restart.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var in struct {
				Provider    string              `yaml:"provider"`
				Credentials payment.Credentials `yaml:"credentials"`
			}
			if err := yaml.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			p, err := payment.ParseProvider(in.Provider)
			if err != nil {
				return err
			}
			gc := payment.GatewayConfig{Provider: p, Credentials: in.Credentials}
			if _, err := payment.DefaultRegistry().New(gc); err != nil {
				return err
			}
			e, err := loadEnv(true)
			if err != nil {
				return err
			}
			if err := e.settings().SaveGateway(cmd.Context(), gc); err != nil {
				return err
			}
			return printGateway(gc)
		},
	}
	cmd.AddCommand(set)
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert default settings and, optionally, an admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := e.settings().SeedDefaults(ctx); err != nil {
				return err
			}
			email, _ := cmd.Flags().GetString("admin-email")
			if email == "" {
				fmt.Println("settings seeded")
				return nil
			}
			users := repository.NewUserRepository(e.db)
			if u, err := users.GetByEmail(ctx, email); err == nil {
				if !u.IsAdmin() {
					return fmt.Errorf("user %s exists without the %s role", email, domain.RoleAdmin)
				}
				fmt.Printf("admin %s already exists\n", email)
				return nil
			} else if !errors.Is(err, payment.ErrNotFound) {
				return err
			}
			u := &models.User{Email: email, FirstName: "Admin", Role: domain.RoleAdmin}
			if err := users.Create(ctx, u); err != nil {
				return err
			}
			fmt.Printf("settings seeded, admin %s created with id %d\n", email, u.ID)
			return nil
		},
	}
	cmd.Flags().String("admin-email", "", "Create an admin user with this email")
	return cmd
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token [email]",
		Short: "Issue an access token for an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(true)
			if err != nil {
				return err
			}
			u, err := repository.NewUserRepository(e.db).GetByEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tok, err := auth.GenerateAccessToken(&e.cfg.JWT, u.ID, u.Email, u.Role)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
}

func printGateway(gc payment.GatewayConfig) error {
	c := gc.Credentials
	return printJSON(map[string]any{
		"provider":        gc.Provider,
		"test_mode":       c.TestMode,
		"api_key":         service.MaskSecret(c.APIKey),
		"secret_key":      service.MaskSecret(c.SecretKey),
		"public_key":      service.MaskSecret(c.PublicKey),
		"secret_hash":     service.MaskSecret(c.SecretHash),
		"test_secret_key": service.MaskSecret(c.TestSecretKey),
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
