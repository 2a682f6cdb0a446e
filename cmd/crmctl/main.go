package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/fakto/crmbot/core/bootstrap"
	"github.com/fakto/crmbot/internal/config"
)

const usernamesPerChunk = 50

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "crmctl",
		Short:         "Operational tooling for the CRM bot database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "path to configuration file")

	root.AddCommand(
		migrateCmd(&cfgPath),
		usernamesCmd(&cfgPath),
		seedCmd(&cfgPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "crmctl: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if env := os.Getenv("CRMBOT_CONFIG"); env != "" && path == "config.yaml" {
		path = env
	}
	return config.Load(path)
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			res, err := bootstrap.Run(bootstrap.Options{
				Config:   cfg.CoreConfig(),
				Database: &cfg.Database,
			})
			if err != nil {
				return err
			}
			defer res.DB.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func usernamesCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "usernames [prefix]",
		Short: "List registered usernames, optionally filtered by prefix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			res, err := bootstrap.Run(bootstrap.Options{
				Config:         cfg.CoreConfig(),
				Database:       &cfg.Database,
				SkipMigrations: true,
			})
			if err != nil {
				return err
			}
			defer res.DB.Close()

			query := "SELECT username FROM users ORDER BY username"
			queryArgs := []any{}
			if len(args) == 1 && args[0] != "" {
				query = "SELECT username FROM users WHERE username LIKE $1 ORDER BY username"
				queryArgs = append(queryArgs, args[0]+"%")
			}

			var names []string
			if err := res.DB.SelectContext(cmd.Context(), &names, query, queryArgs...); err != nil {
				return fmt.Errorf("query usernames: %w", err)
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no usernames found")
				return nil
			}
			for start := 0; start < len(names); start += usernamesPerChunk {
				end := start + usernamesPerChunk
				if end > len(names) {
					end = len(names)
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names[start:end], "\n"))
			}
			return nil
		},
	}
}

func seedCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert a demo tenant with sample clients and products",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			res, err := bootstrap.Run(bootstrap.Options{
				Config:   cfg.CoreConfig(),
				Database: &cfg.Database,
			})
			if err != nil {
				return err
			}
			defer res.DB.Close()

			tenantID := cfg.Tenant.DefaultID
			if tenantID == "" {
				tenantID = uuid.NewString()
			}
			if err := bootstrap.RunSeeders(cmd.Context(), res.DB,
				companySeeder(tenantID),
				productSeeder(tenantID),
			); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded demo data for tenant %s\n", tenantID)
			return nil
		},
	}
}

func companySeeder(tenantID string) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		companies := []struct {
			Name, City, Route, Category, Contact, Phone, Address string
		}{
			{"Supermercados del Norte", "Madrid", "Ruta 1", "Minorista", "Lucía Pérez", "600111222", "Calle Mayor 12"},
			{"Distribuciones García", "Sevilla", "Ruta 2", "Mayorista", "Carlos García", "600333444", "Av. de la Feria 8"},
			{"Bodega El Puerto", "Valencia", "Ruta 1", "Hostelería", "Ana Torres", "600555666", "Paseo Marítimo 3"},
		}
		for _, co := range companies {
			_, err := db.ExecContext(ctx,
				`INSERT INTO companies (id, client_name, city, route, category, contact_person, phone, address, tenant_id)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				 ON CONFLICT DO NOTHING`,
				uuid.NewString(), co.Name, co.City, co.Route, co.Category, co.Contact, co.Phone, co.Address, tenantID,
			)
			if err != nil {
				return fmt.Errorf("seed company %q: %w", co.Name, err)
			}
		}
		return nil
	})
}

func productSeeder(tenantID string) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		products := []struct {
			SKU         int
			Name        string
			Description string
			Category    string
			Price       float64
			Stock       int
		}{
			{1001, "Aceite de oliva 1L", "Virgen extra, primera presión", "Alimentación", 8.50, 120},
			{1002, "Café molido 250g", "Tueste natural", "Alimentación", 3.95, 200},
			{2001, "Detergente 3L", "Uso industrial", "Limpieza", 12.00, 0},
		}
		for _, p := range products {
			_, err := db.ExecContext(ctx,
				`INSERT INTO products (id, sku, name, description, category, price, stock, tenant_id)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 ON CONFLICT DO NOTHING`,
				uuid.NewString(), p.SKU, p.Name, p.Description, p.Category, p.Price, p.Stock, tenantID,
			)
			if err != nil {
				return fmt.Errorf("seed product %d: %w", p.SKU, err)
			}
		}
		return nil
	})
}
