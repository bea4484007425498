package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"liftsim/src/config"
	"liftsim/src/dispatcher"
	"liftsim/src/driver"
	"liftsim/src/elev"
	"liftsim/src/executor"
	"liftsim/src/network"
	"liftsim/src/store"
	"liftsim/src/utils"
)

func main() {
	configPath := flag.String("config", "liftsim.yaml", "Path to the YAML config file")
	envFile := flag.String("env", ".env", "Path to an optional .env file with LIFTSIM_ overrides")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		fmt.Fprintln(os.Stderr, "liftsim:", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}
	closeLog, err := utils.InitLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := store.New()
	if cfg.Store.DataFile != "" {
		loaded, err := db.Load(cfg.Store.DataFile)
		if err != nil {
			return err
		}
		slog.Info("Store file", "path", cfg.Store.DataFile, "loaded", loaded)
	}
	building, err := elev.InitBuilding(ctx, db, cfg.Building)
	if err != nil {
		return err
	}

	elevs := elev.NewRegistry()
	defer elevs.Close()
	disp := dispatcher.New(db, elevs)
	var execOpts []executor.Option
	if cfg.Dispatch.ReassignPending {
		execOpts = append(execOpts, executor.WithIdleHook(disp.OnIdle))
	}
	exec := executor.New(db, elevs, execOpts...)

	if cfg.Driver.Enabled {
		var opts []driver.Option
		if cfg.Driver.ShowStatus {
			opts = append(opts, driver.WithStatus(os.Stdout))
		}
		go driver.New(db, exec, building.ID, opts...).Run(ctx, cfg.Driver.TravelDuration)
	}

	api := network.New(db, disp, exec, building.ID, config.RequestLimit)
	serveErr := api.ListenAndServe(ctx, cfg.HTTP.Addr)
	stop()

	if cfg.Store.DataFile != "" {
		if err := db.Save(cfg.Store.DataFile); err != nil {
			slog.Error("Saving store failed", "path", cfg.Store.DataFile, "error", err)
			if serveErr == nil {
				serveErr = err
			}
		}
	}
	slog.Info("Shut down")
	return serveErr
}
