package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacentio/grove/config"
	"github.com/jacentio/grove/forest"
	"github.com/jacentio/grove/httpapi"
	"github.com/jacentio/grove/store"
	"github.com/jacentio/grove/store/sqlite"
)

const provisionWait = 2 * time.Minute

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "grove",
		Short:         "Store and serve a forest of labelled nodes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")

	// withApp runs fn with a fully wired app and closes it afterwards.
	withApp := func(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(cmd, a, args)
		}
	}

	var parent int64
	addCmd := &cobra.Command{
		Use:   "add LABEL",
		Short: "Create a node, optionally under --parent",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			var parentID *int64
			if cmd.Flags().Changed("parent") {
				parentID = forest.Int64(parent)
			}
			node, err := a.service.CreateNode(cmd.Context(), args[0], parentID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", node.ID)
			return nil
		}),
	}
	addCmd.Flags().Int64Var(&parent, "parent", 0, "id of the parent node")

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the whole forest",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			views, err := a.service.GetForest(cmd.Context())
			if err != nil {
				return err
			}
			printForest(cmd.OutOrStdout(), views)
			return nil
		}),
	}

	var cloneParent int64
	cloneCmd := &cobra.Command{
		Use:   "clone TARGET",
		Short: "Copy the subtree rooted at TARGET under --parent",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			target, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid target id %q", args[0])
			}
			node, err := a.service.CloneSubtree(cmd.Context(), target, cloneParent)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", node.ID)
			return nil
		}),
	}
	cloneCmd.Flags().Int64Var(&cloneParent, "parent", 0, "id of the node to copy under")
	_ = cloneCmd.MarkFlagRequired("parent")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables of the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		}),
	}

	root.AddCommand(addCmd, treeCmd, cloneCmd, migrateCmd, serveCmd)
	return root
}

func migrate(ctx context.Context, cfg config.Config, out io.Writer) error {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		fmt.Fprintln(out, "memory backend needs no migration")
		return nil
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "schema ready in %s\n", cfg.Store.SQLitePath)
		return s.Close()
	default:
		client, err := store.NewClient(ctx, cfg.Store.AWSRegion, cfg.Store.DynamoDBEndpoint)
		if err != nil {
			return err
		}
		dc := cfg.DynamoConfig()
		if err := store.CreateTables(ctx, client, dc, provisionWait); err != nil {
			return err
		}
		fmt.Fprintf(out, "tables %s and %s ready\n", dc.NodesTable, dc.CounterTable)
		return nil
	}
}

func serve(ctx context.Context, a *app) error {
	srv := &http.Server{
		Addr: a.cfg.Server.Address,
		Handler: httpapi.NewRouter(a.service, httpapi.Options{
			Logger:         a.logger,
			Metrics:        a.metrics,
			AllowedOrigins: a.cfg.CORS.AllowedOrigins,
			Timeout:        a.cfg.Timeout,
		}),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server",
			zap.String("address", a.cfg.Server.Address),
			zap.String("environment", a.cfg.Environment),
			zap.String("backend", a.cfg.Store.Backend),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}

// printForest writes one line per node, indented by depth.
func printForest(w io.Writer, views []*forest.View) {
	if len(views) == 0 {
		fmt.Fprintln(w, "(empty)")
		return
	}
	forest.Walk(views, func(depth int, v *forest.View) bool {
		fmt.Fprintf(w, "%s%s [%d]\n", strings.Repeat("  ", depth), v.Label, v.ID)
		return true
	})
}
