package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"github.com/dutchiono/restaurant-pos-system/internal/config"
	"github.com/dutchiono/restaurant-pos-system/internal/connections/database"
	"github.com/dutchiono/restaurant-pos-system/internal/domain"
	"github.com/dutchiono/restaurant-pos-system/internal/logger"
	"github.com/dutchiono/restaurant-pos-system/internal/service"
	"github.com/dutchiono/restaurant-pos-system/internal/storage"
)

// floorctl is the operator's read-only view of the floor: table states,
// occupancy numbers and turn times, straight from the database.
func main() {
	mode := flag.String("mode", "occupancy", "occupancy | tables | orders")
	plan := flag.String("plan", "", "floor plan id")
	window := flag.Int("window", 4, "turn-time lookback in hours (occupancy mode)")
	cfgPath := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()

	_ = godotenv.Load()

	lg := logger.New("floorctl")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": *cfgPath})
		os.Exit(1)
	}
	if *plan == "" && *mode != "orders" {
		fmt.Fprintln(os.Stderr, "--plan is required")
		os.Exit(2)
	}

	ctx := context.Background()
	db, err := database.ConnectDB(ctx, cfg.Database)
	if err != nil {
		lg.Error("db_connect_failed", err, nil)
		os.Exit(1)
	}
	store := storage.NewPostgres(db)
	defer store.Close()

	tables := service.NewTableService(store, nil, lg)

	switch *mode {
	case "occupancy":
		err = printOccupancy(ctx, tables, *plan, time.Duration(*window)*time.Hour)
	case "tables":
		err = printTables(ctx, store, *plan)
	case "orders":
		err = printOrders(ctx, store, *plan)
	default:
		fmt.Fprintln(os.Stderr, "--mode must be one of: occupancy | tables | orders")
		os.Exit(2)
	}
	if err != nil {
		lg.Error("report_failed", err, map[string]any{"mode": *mode})
		os.Exit(1)
	}
}

func printOccupancy(ctx context.Context, tables *service.TableService, plan string, window time.Duration) error {
	stats, err := tables.OccupancyStats(ctx, plan)
	if err != nil {
		return err
	}
	turn, ok, err := tables.AverageTurnTime(ctx, plan, window)
	if err != nil {
		return err
	}

	tw := tablewriter.NewTable(os.Stdout)
	tw.Header("Metric", "Value")
	tw.Append([]string{"Tables", fmt.Sprintf("%d", stats.Total)})
	tw.Append([]string{"Available", fmt.Sprintf("%d", stats.Available)})
	tw.Append([]string{"Occupied", fmt.Sprintf("%d", stats.Occupied)})
	tw.Append([]string{"Reserved", fmt.Sprintf("%d", stats.Reserved)})
	tw.Append([]string{"Dirty", fmt.Sprintf("%d", stats.Dirty)})
	tw.Append([]string{"Cleaning", fmt.Sprintf("%d", stats.Cleaning)})
	tw.Append([]string{"Occupancy", fmt.Sprintf("%.0f%%", stats.OccupancyRate)})
	if ok {
		tw.Append([]string{"Avg turn", turn.Round(time.Minute).String()})
	} else {
		tw.Append([]string{"Avg turn", "n/a"})
	}
	return tw.Render()
}

func printTables(ctx context.Context, store storage.Store, plan string) error {
	list, err := store.ListTables(ctx, plan)
	if err != nil {
		return err
	}

	tw := tablewriter.NewTable(os.Stdout)
	tw.Header("#", "Seats", "Section", "Status", "Order")
	for _, t := range list {
		order := ""
		if t.CurrentOrder != nil {
			order = *t.CurrentOrder
		}
		tw.Append([]string{
			fmt.Sprintf("%d", t.Number),
			fmt.Sprintf("%d-%d", t.MinCapacity, t.Capacity),
			t.Section,
			string(t.Status),
			order,
		})
	}
	return tw.Render()
}

func printOrders(ctx context.Context, store storage.Store, plan string) error {
	list, err := store.ListActiveOrders(ctx, plan)
	if err != nil {
		return err
	}

	tw := tablewriter.NewTable(os.Stdout)
	tw.Header("Order", "Type", "Status", "Items", "Total")
	for _, o := range list {
		open := 0
		for _, it := range o.Items {
			if it.Status != domain.ItemCancelled {
				open++
			}
		}
		tw.Append([]string{
			fmt.Sprintf("#%d", o.OrderNumber),
			string(o.Type),
			string(o.Status),
			fmt.Sprintf("%d", open),
			fmt.Sprintf("%.2f", o.Total),
		})
	}
	return tw.Render()
}
