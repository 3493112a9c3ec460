package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/agentuity/go-query/config"
	"github.com/agentuity/go-query/env"
	"github.com/agentuity/go-query/logger"
	"github.com/agentuity/go-query/metrics"
	"github.com/agentuity/go-query/query"
	"github.com/agentuity/go-query/storefront"
	"github.com/spf13/cobra"
)

// app is the state shared by the subcommands, built in PersistentPreRunE.
type app struct {
	cfg    *config.Config
	log    logger.Logger
	api    *storefront.Client
	client *query.Client
	out    io.Writer
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Query the storefront API through the query cache",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("url", "", "storefront API base URL")
	flags.String("token", "", "storefront API token")

	root.AddCommand(
		a.productsCommand(),
		a.productCommand(),
		a.ordersCommand(),
		a.customersCommand(),
		a.cartCommand(),
		a.watchCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	path := env.FlagOrEnv(cmd, "config", config.EnvConfigFile, "")
	cfg, err := config.Load(cmd.Context(), path)
	if err != nil {
		return err
	}
	cfg.LogLevel = env.FlagOrEnv(cmd, "log-level", config.EnvLogLevel, cfg.LogLevel)
	cfg.Storefront.URL = env.FlagOrEnv(cmd, "url", config.EnvStorefrontURL, cfg.Storefront.URL)
	cfg.Storefront.Token = env.FlagOrEnv(cmd, "token", config.EnvStorefrontToken, cfg.Storefront.Token)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = env.NewLogger(cmd, cfg.LogLevel)
	a.out = cmd.OutOrStdout()
	a.api = storefront.New(a.log, cfg.Storefront.URL, cfg.Storefront.Token,
		storefront.WithTimeout(time.Duration(cfg.Storefront.Timeout)))
	opts := append(cfg.ClientOptions(a.log), query.WithAuthErrorHandler(func(err error) {
		a.log.Error("storefront rejected the credentials: %s", err)
	}))
	a.client = query.New(cmd.Context(), opts...)
	return nil
}

func (a *app) teardown() error {
	if a.client == nil {
		return nil
	}
	s := a.client.Stats()
	a.log.Debug("fetches=%d deduplicated=%d hits=%d failures=%d", s.Fetches, s.Deduplicated, s.Hits, s.Failures)
	return a.client.Close()
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) productsCommand() *cobra.Command {
	var filter storefront.ProductFilter
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := query.Fetch[storefront.ProductPage](cmd.Context(), a.client, storefront.ProductsQuery(a.api, filter))
			if err != nil {
				return err
			}
			return a.print(page)
		},
	}
	cmd.Flags().IntVar(&filter.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&filter.PageSize, "page-size", 20, "page size")
	cmd.Flags().StringVar(&filter.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&filter.Search, "search", "", "search text")
	return cmd
}

func (a *app) productCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product <id>",
		Short: "Show or update one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := query.Fetch[storefront.Product](cmd.Context(), a.client, storefront.ProductQuery(a.api, args[0]))
			if err != nil {
				return err
			}
			return a.print(p)
		},
	}
	var price float64
	var name string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u storefront.ProductUpdate
			if cmd.Flags().Changed("price") {
				u.Price = &price
			}
			if cmd.Flags().Changed("name") {
				u.Name = &name
			}
			m := a.client.NewMutation(storefront.UpdateProductMutation(a.client, a.api))
			v, err := m.MutateAsync(cmd.Context(), storefront.UpdateProductVars{ID: args[0], Update: u})
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}
	update.Flags().Float64Var(&price, "price", 0, "new price")
	update.Flags().StringVar(&name, "name", "", "new name")
	cmd.AddCommand(update)
	return cmd
}

func (a *app) ordersCommand() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orders, err := query.Fetch[[]storefront.Order](cmd.Context(), a.client,
				storefront.OrdersQuery(a.api, storefront.OrderFilter{Status: storefront.OrderStatus(status)}))
			if err != nil {
				return err
			}
			return a.print(orders)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only orders with this status")
	setStatus := &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Change the status of an order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.client.NewMutation(storefront.UpdateOrderStatusMutation(a.client, a.api))
			v, err := m.MutateAsync(cmd.Context(), storefront.UpdateOrderStatusVars{ID: args[0], Status: storefront.OrderStatus(args[1])})
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}
	cmd.AddCommand(setStatus)
	return cmd
}

func (a *app) customersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "customers",
		Short: "List customers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			customers, err := query.Fetch[[]storefront.Customer](cmd.Context(), a.client, storefront.CustomersQuery(a.api))
			if err != nil {
				return err
			}
			return a.print(customers)
		},
	}
}

func (a *app) cartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart <cart-id>",
		Short: "Show a cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cart, err := query.Fetch[storefront.Cart](cmd.Context(), a.client, storefront.CartQuery(a.api, args[0]))
			if err != nil {
				return err
			}
			return a.print(cart)
		},
	}
	add := &cobra.Command{
		Use:   "add <cart-id> <product-id> <quantity>",
		Short: "Add a product to a cart",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[2])
			}
			p, err := query.Fetch[storefront.Product](cmd.Context(), a.client, storefront.ProductQuery(a.api, args[1]))
			if err != nil {
				return err
			}
			m := a.client.NewMutation(storefront.AddToCartMutation(a.client, a.api))
			v, err := m.MutateAsync(cmd.Context(), storefront.AddToCartVars{
				CartID: args[0],
				Item:   storefront.CartItem{ProductID: p.ID, Quantity: qty, Price: p.Price},
			})
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}
	remove := &cobra.Command{
		Use:   "remove <cart-id> <product-id>",
		Short: "Remove a product from a cart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.client.NewMutation(storefront.RemoveFromCartMutation(a.client, a.api))
			v, err := m.MutateAsync(cmd.Context(), storefront.RemoveFromCartVars{CartID: args[0], ProductID: args[1]})
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}
	var customer string
	checkout := &cobra.Command{
		Use:   "checkout <cart-id>",
		Short: "Turn a cart into an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cart, err := query.Fetch[storefront.Cart](cmd.Context(), a.client, storefront.CartQuery(a.api, args[0]))
			if err != nil {
				return err
			}
			items := make([]storefront.OrderItem, len(cart.Items))
			for i, it := range cart.Items {
				items[i] = storefront.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
			}
			m := a.client.NewMutation(storefront.CreateOrderMutation(a.client, a.api))
			v, err := m.MutateAsync(cmd.Context(), storefront.NewOrder{CustomerID: customer, CartID: args[0], Items: items})
			if err != nil {
				return err
			}
			return a.print(v)
		},
	}
	checkout.Flags().StringVar(&customer, "customer", "", "customer id")
	_ = checkout.MarkFlagRequired("customer")
	cmd.AddCommand(add, remove, checkout)
	return cmd
}

func (a *app) watchCommand() *cobra.Command {
	var interval time.Duration
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch <product-id>",
		Short: "Poll a product and print every change until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr != "" {
				registry, err := metrics.NewRegistry(metrics.NewCollector(a.client, "", nil), true)
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: metricsAddr, Handler: metrics.Handler(registry), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						a.log.Error("metrics server: %s", err)
					}
				}()
				defer srv.Shutdown(context.Background())
				a.log.Info("serving metrics on %s", metricsAddr)
			}
			opts := storefront.ProductQuery(a.api, args[0])
			opts.RefetchInterval = interval
			o := a.client.Watch(opts)
			defer o.Close()
			unsub := o.Subscribe(func(r query.Result) {
				if r.IsFetching {
					return
				}
				if r.IsError {
					a.log.Warn("refresh failed: %s", r.Error)
					return
				}
				if err := a.print(r.Data); err != nil {
					a.log.Error("print: %s", err)
				}
			})
			defer unsub()
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "poll interval")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}
