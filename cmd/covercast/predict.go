package main

import (
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hrygo/covercast/plugin/ai/forecast"
	"github.com/hrygo/covercast/store"
)

var (
	predictCmd = &cobra.Command{
		Use:   "predict",
		Short: "Forecast covers for one service and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProfile()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer a.Close()

			flags := cmd.Flags()
			restaurantID, _ := flags.GetString("restaurant")
			date, _ := flags.GetString("date")
			serviceType, _ := flags.GetString("service")

			prediction, err := a.forecast.Predict(cmd.Context(), &forecast.Query{
				RestaurantID: restaurantID,
				ServiceDate:  date,
				ServiceType:  store.ServiceType(serviceType),
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(prediction)
		},
	}

	batchCmd = &cobra.Command{
		Use:   "batch",
		Short: "Forecast covers for every date of a range and print one JSON line per date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProfile()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), p)
			if err != nil {
				return err
			}
			defer a.Close()

			flags := cmd.Flags()
			restaurantID, _ := flags.GetString("restaurant")
			from, _ := flags.GetString("from")
			to, _ := flags.GetString("to")
			serviceType, _ := flags.GetString("service")

			result, err := a.batch.Run(cmd.Context(), &forecast.BatchQuery{
				RestaurantID: restaurantID,
				ServiceType:  store.ServiceType(serviceType),
				From:         from,
				To:           to,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			for _, entry := range result.Entries {
				if err := enc.Encode(entry); err != nil {
					return err
				}
			}
			return enc.Encode(result.Summary)
		},
	}
)

func init() {
	predictCmd.Flags().String("restaurant", "", "restaurant id")
	predictCmd.Flags().String("date", "", "service date, YYYY-MM-DD")
	predictCmd.Flags().String("service", string(store.ServiceTypeDinner), "service type")
	_ = predictCmd.MarkFlagRequired("restaurant")
	_ = predictCmd.MarkFlagRequired("date")

	batchCmd.Flags().String("restaurant", "", "restaurant id")
	batchCmd.Flags().String("from", "", "first service date, YYYY-MM-DD")
	batchCmd.Flags().String("to", "", "last service date, YYYY-MM-DD")
	batchCmd.Flags().String("service", string(store.ServiceTypeDinner), "service type")
	_ = batchCmd.MarkFlagRequired("restaurant")
	_ = batchCmd.MarkFlagRequired("from")
	_ = batchCmd.MarkFlagRequired("to")
}
