package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vocbridge/voc2mqtt/config"
	infracloud "github.com/vocbridge/voc2mqtt/infra/cloud"
)

var vehiclesCmd = &cobra.Command{
	Use:   "vehicles",
	Short: "Vehicle related commands",
}

var vehiclesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the vehicles registered on the account",
	RunE:  runVehiclesLs,
}

func init() {
	vehiclesCmd.AddCommand(vehiclesLsCmd)
	rootCmd.AddCommand(vehiclesCmd)
}

func runVehiclesLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client, err := infracloud.NewClient(cfg.VOC)
	if err != nil {
		return fmt.Errorf("cloud client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	ids, err := client.ListVehicles(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
