package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/recordlink/recordlink/internal/cli/config"
	"github.com/recordlink/recordlink/internal/engine"
	"github.com/recordlink/recordlink/internal/joint"
)

var syncVerbose bool

func init() {
	syncCmd.Flags().BoolVarP(&syncVerbose, "verbose", "v", false, "Enable debug logging")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a full resync of the configured relationship",
	Long: `Load recordlink.yml, open the parent and child backends, build the
relationship joint and replay every record through its hooks to establish a
consistent denormalized baseline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		log, err := newLogger(syncVerbose || cfg.Verbose)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		parent, closeParent, err := openBackend(ctx, cfg.Parent)
		if err != nil {
			return err
		}
		defer closeParent()

		child, closeChild, err := openBackend(ctx, cfg.Child)
		if err != nil {
			return err
		}
		defer closeChild()

		j, err := joint.New(joint.Config{
			ParentEntity:      cfg.Parent.Entity,
			ChildEntity:       cfg.Child.Entity,
			LookupField:       cfg.Relationship.LookupField,
			ParentFieldName:   cfg.Relationship.ParentFieldName,
			ParentFields:      cfg.Relationship.ParentFields,
			ParentCollection:  parent,
			ChildCollection:   child,
			RelatedListName:   cfg.Relationship.RelatedListName,
			RelatedListFields: cfg.Relationship.RelatedListFields,
		}, joint.WithLogger(log))
		if err != nil {
			return err
		}

		eng := engine.New(engine.WithLogger(log))
		eng.Register(j)

		if err := eng.Resync(ctx); err != nil {
			color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "✗ resync failed\n")
			return err
		}

		color.New(color.FgGreen, color.Bold).Printf("✓ resynced %s → %s\n",
			cfg.Parent.Entity, cfg.Child.Entity)
		return nil
	},
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
