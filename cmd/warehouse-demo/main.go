package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/app"
	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/warehouse"
)

// report собирает итог демонстрационного сценария.
type report struct {
	Customer  *domain.Customer
	Order     *domain.Order
	Products  []*domain.Product
	Timeline  []domain.TimelineEvent
	CancelErr error
}

// runScenario регистрирует клиента и товары, оформляет заказ, подтверждает и отгружает его
// в одной единице работы. Отмена отгруженного заказа должна завершиться ошибкой перехода.
func runScenario(ctx context.Context, runner *warehouse.Runner) (report, error) {
	var r report
	err := runner.Do(ctx, func(ops warehouse.Operations) error {
		customer, err := ops.CreateCustomer(ctx, "Bradley Pitt", "bradley@gmail.com")
		if err != nil {
			return err
		}
		table, err := ops.CreateProduct(ctx, "Table", 10, 1000.0)
		if err != nil {
			return err
		}
		chair, err := ops.CreateProduct(ctx, "Chair", 50, 20.0)
		if err != nil {
			return err
		}

		order, err := ops.CreateOrder(ctx, customer.ID, []int64{table.ID, chair.ID})
		if err != nil {
			return err
		}
		if order, err = ops.ConfirmOrder(ctx, order.ID); err != nil {
			return err
		}
		if order, err = ops.ShipOrder(ctx, order.ID); err != nil {
			return err
		}

		_, cancelErr := ops.CancelOrder(ctx, order.ID)
		if !domain.IsInvalidStateTransition(cancelErr) {
			return fmt.Errorf("cancel of shipped order: expected invalid transition, got %v", cancelErr)
		}

		products, err := ops.AvailableProducts(ctx)
		if err != nil {
			return err
		}
		timeline, err := ops.OrderTimeline(ctx, order.ID)
		if err != nil {
			return err
		}

		r = report{
			Customer:  customer,
			Order:     order,
			Products:  products,
			Timeline:  timeline,
			CancelErr: cancelErr,
		}
		return nil
	})
	return r, err
}

func main() {
	var (
		storageDriver string
		dsn           string
		tracingMode   string
		logLevel      string
	)
	flag.StringVar(&storageDriver, "storage", app.StorageDriverMemory, "storage driver: memory|postgres")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: WAREHOUSE_POSTGRES_DSN)")
	flag.StringVar(&tracingMode, "tracing", "none", "tracing exporter: none|stdout|otlp")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.Parse()

	if err := app.ConfigureLogging(logLevel); err != nil {
		log.WithError(err).Fatal("invalid log level")
	}
	if dsn == "" {
		dsn = os.Getenv("WAREHOUSE_POSTGRES_DSN")
	}

	cfg := app.DefaultConfig()
	cfg.StorageDriver = storageDriver
	cfg.PostgresDSN = dsn
	cfg.TracingMode = tracingMode
	cfg.ServiceName = "warehouse-demo"

	ctx := context.Background()
	logger := log.WithField("component", "warehouse-demo")

	rt, err := app.NewRuntime(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize runtime")
	}

	r, err := runScenario(ctx, rt.Runner())
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if closeErr := rt.Close(closeCtx); closeErr != nil {
		logger.WithError(closeErr).Warn("runtime close failed")
	}
	if err != nil {
		logger.WithError(err).Fatal("demo scenario failed")
	}

	logger.WithFields(log.Fields{
		"customer_id": r.Customer.ID,
		"customer":    r.Customer.Name,
		"order_id":    r.Order.ID,
		"status":      r.Order.Status,
		"total_price": r.Order.TotalPrice,
	}).Info("order shipped")
	for _, product := range r.Products {
		logger.WithFields(log.Fields{
			"product_id": product.ID,
			"name":       product.Name,
			"quantity":   product.Quantity,
			"price":      product.Price,
		}).Info("product in stock")
	}
	for _, event := range r.Timeline {
		logger.WithFields(log.Fields{
			"type":     event.Type,
			"occurred": event.Occurred.Format(time.RFC3339),
		}).Info("order timeline")
	}
	logger.WithError(r.CancelErr).Info("cancel of shipped order rejected")
}
