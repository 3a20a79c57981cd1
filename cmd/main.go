package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradesentinel/src/database"
	"tradesentinel/src/engine"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "TradeSentinel CMD"
	app.Usage = "The TradeSentinel command line interface"

	app.Commands = []cli.Command{
		engineCMD,
		guardianCMD,
		sentinelCMD,
		ceoCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run all loops and the status server",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the full engine: guardian, sentinel, CEO overlay and status server`,
	}
	guardianCMD = cli.Command{
		Name:        "guardian",
		Usage:       "run only the protective-exit loop",
		Action:      guardianAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the guardian loop on its own`,
	}
	sentinelCMD = cli.Command{
		Name:        "sentinel",
		Usage:       "run a single analysis cycle and exit",
		Action:      sentinelAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run one sentinel analysis cycle`,
	}
	ceoCMD = cli.Command{
		Name:        "ceo",
		Usage:       "run a strategic review now and exit",
		Action:      ceoAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Force a CEO strategic review regardless of schedule`,
	}
)

func buildEngine() (*engine.Engine, error) {
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return nil, err
	}
	return engine.New()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func engineAction(_ *cli.Context) error {
	logrus.Info("Starting engine CMD")

	eng, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	eng.Run(ctx, port)
	return nil
}

func guardianAction(_ *cli.Context) error {
	logrus.Info("Starting guardian CMD")

	eng, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	eng.Gateway.StartStream(ctx, eng.Settings.TrackedCoins)
	eng.Guardian.Start(ctx, eng.Settings.GuardianInterval)
	return nil
}

func sentinelAction(_ *cli.Context) error {
	logrus.Info("Starting sentinel CMD")

	eng, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if err := eng.Sentinel.Run(ctx); err != nil {
		logrus.WithError(err).Error("Sentinel cycle failed")
		return err
	}
	return nil
}

func ceoAction(_ *cli.Context) error {
	logrus.Info("Starting CEO review CMD")

	eng, err := buildEngine()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if err := eng.Overlay.Run(ctx, "manual review"); err != nil {
		logrus.WithError(err).Error("CEO review failed")
		return err
	}
	return nil
}
