package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/agri-weather-service/internal/alerts"
	"github.com/kjstillabower/agri-weather-service/internal/models"
	"github.com/kjstillabower/agri-weather-service/internal/service"
	"github.com/kjstillabower/agri-weather-service/internal/validation"
)

// coordFlags binds --lat/--lon to a command.
type coordFlags struct {
	lat, lon string
}

func (f *coordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.lat, "lat", "", "latitude in decimal degrees")
	cmd.Flags().StringVar(&f.lon, "lon", "", "longitude in decimal degrees")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
}

func (f *coordFlags) parse() (models.Coordinates, error) {
	return validation.ParseCoordinates(f.lat, f.lon)
}

// withApp builds the dependency graph for a one-shot command and tears it down afterwards.
func withApp(ctx context.Context, env *cliEnv, fn func(a *app) error) error {
	// CLI output goes to stdout; keep operational logs at warn and above.
	logger := env.logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	a, err := buildApp(ctx, env.cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))
	return fn(a)
}

func printResult(w io.Writer, format string, v interface{}) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}

func newForecastCommand(env *cliEnv) *cobra.Command {
	var coords coordFlags
	var output string
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Fetch a forecast with farming advice for one location",
		Example: "  agri-weather forecast --lat 28.6139 --lon 77.2090\n" +
			"  agri-weather forecast --lat 19.076 --lon 72.8777 -o yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := coords.parse()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(a *app) error {
				result, err := a.forecasts.GetForecast(cmd.Context(), loc)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), output, result)
			})
		},
	}
	coords.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	return cmd
}

func newInvalidateCommand(env *cliEnv) *cobra.Command {
	var coords coordFlags
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop the cached forecast for one location from every cache tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := coords.parse()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(a *app) error {
				a.forecasts.InvalidateCache(cmd.Context(), loc)
				fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", service.LocationKey(loc.Latitude, loc.Longitude))
				return nil
			})
		},
	}
	coords.register(cmd)
	return cmd
}

func newAlertsCommand(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Generate farming alerts and manage alert subscribers",
	}
	cmd.AddCommand(newAlertsRunCommand(env), newAlertsGenerateCommand(env), newAlertsSubscribeCommand(env))
	return cmd
}

func newAlertsRunCommand(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Regenerate alerts for every alert-enabled user once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), env, func(a *app) error {
				s, err := alerts.NewScheduler(a.alerts, a.users, a.logger, alerts.SchedulerConfig{
					Schedule:    env.cfg.AlertsSchedule,
					Timezone:    env.cfg.AlertsTimezone,
					JobTimeout:  env.cfg.AlertsJobTimeout,
					Concurrency: env.cfg.AlertsConcurrency,
				})
				if err != nil {
					return err
				}
				n, err := s.RunOnce(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "generated %d alerts\n", n)
				return err
			})
		},
	}
}

func newAlertsGenerateCommand(env *cliEnv) *cobra.Command {
	var userID, output string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate and store alerts for one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), env, func(a *app) error {
				list, err := a.alerts.GenerateFarmingAlerts(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), output, list)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newAlertsSubscribeCommand(env *cliEnv) *cobra.Command {
	var coords coordFlags
	var userID string
	var disable bool
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Set a user's farm location and alert opt-in",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := coords.parse()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), env, func(a *app) error {
				err := a.users.UpsertUser(cmd.Context(), models.UserProfile{
					ID:            userID,
					Location:      &loc,
					AlertsEnabled: !disable,
				})
				if err != nil {
					return fmt.Errorf("save user: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "user %s subscribed=%t\n", userID, !disable)
				return nil
			})
		},
	}
	coords.register(cmd)
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().BoolVar(&disable, "disable", false, "opt the user out of scheduled alerts")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
