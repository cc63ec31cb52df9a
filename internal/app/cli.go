package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit %d", e.code)
}

var Version = "dev"

func Execute(args []string, out io.Writer, errOut io.Writer) int {
	app := App{Out: out, Err: errOut}
	flags := GlobalFlags{}
	var showVersion bool

	root := &cobra.Command{
		Use:           "orderwatch",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().BoolVarP(&showVersion, "version", "V", false, "version")
	root.PersistentFlags().StringVarP(&flags.DataDir, "data-dir", "D", "", "data directory")
	root.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "json output")
	root.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet output")
	root.PersistentFlags().BoolVarP(&flags.NoStart, "no-start", "N", false, "do not auto-start the daemon")
	root.PersistentFlags().StringVarP(&flags.Browser, "browser", "b", "", "browser type")
	root.PersistentFlags().StringVarP(&flags.Channel, "channel", "c", "", "browser channel")
	root.PersistentFlags().BoolVarP(&flags.Headless, "headless", "H", false, "run headless")
	root.PersistentFlags().BoolVarP(&flags.Headed, "headed", "E", false, "run headed")
	root.PersistentFlags().StringVarP(&flags.Interval, "interval", "i", "", "poll interval")
	root.PersistentFlags().StringVarP(&flags.Timeout, "timeout", "t", "", "navigation timeout")
	root.PersistentFlags().StringVarP(&flags.Password, "password", "p", "", "portal password")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if showVersion {
			fmt.Fprintln(out, Version)
			return exitError{code: exitSuccess}
		}
		return nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install Playwright driver and browsers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			code := app.runInstall(flags)
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "Check install and environment health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runDoctor(cfg, flags)
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:    "serve",
		Short:  "Run the daemon process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runServe(cfg)
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "start EMAIL",
		Short: "Start monitoring the portal for new orders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runStart(mgr, flags, args[0])
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop monitoring",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runStopMonitoring(mgr, flags)
			return exitOrNil(code)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show monitoring status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runStatus(mgr, flags)
			return exitOrNil(code)
		},
	})

	ordersCmd := &cobra.Command{
		Use:   "orders",
		Short: "List cached orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			undelivered, _ := cmd.Flags().GetBool("undelivered")
			_, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runOrders(mgr, flags, undelivered)
			return exitOrNil(code)
		},
	}
	ordersCmd.Flags().BoolP("undelivered", "u", false, "only undelivered orders")
	root.AddCommand(ordersCmd)

	root.AddCommand(&cobra.Command{
		Use:   "deliver ORDER_ID",
		Short: "Mark an order delivered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, mgr, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runDeliver(mgr, flags, args[0])
			return exitOrNil(code)
		},
	})

	scrapeCmd := &cobra.Command{
		Use:   "scrape EMAIL",
		Short: "One-shot scrape of the current order list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			save, _ := cmd.Flags().GetBool("save")
			cfg, _, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runScrape(cfg, flags, args[0], save)
			return exitOrNil(code)
		},
	}
	scrapeCmd.Flags().BoolP("save", "s", false, "save scraped orders to the store")
	root.AddCommand(scrapeCmd)

	root.AddCommand(&cobra.Command{
		Use:   "monitor EMAIL",
		Short: "Monitor in the foreground without the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.prepare(flags)
			if err != nil {
				fmt.Fprintln(errOut, err)
				return exitError{code: exitFailure}
			}
			code := app.runMonitor(cfg, flags, args[0])
			return exitOrNil(code)
		},
	})

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintln(errOut, err)
		return exitUsage
	}
	return exitSuccess
}

func exitOrNil(code int) error {
	if code == exitSuccess {
		return nil
	}
	return exitError{code: code}
}
