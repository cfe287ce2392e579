package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/app"
	"github.com/vladislavdragonenkov/warehouse/internal/domain"
	"github.com/vladislavdragonenkov/warehouse/internal/warehouse"
)

type loadMode string

const (
	modeCreate  loadMode = "create"
	modeConfirm loadMode = "confirm"
	modeShip    loadMode = "ship"
)

const scenarioMetric = "scenario"

type config struct {
	storage     string
	dsn         string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	stock       int
	price       float64
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type operationReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Outcomes  map[string]int64 `json:"outcomes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time                  `json:"started_at"`
	DurationSeconds   float64                    `json:"duration_seconds"`
	TotalScenarios    int64                      `json:"total_scenarios"`
	SuccessScenarios  int64                      `json:"success_scenarios"`
	FailedScenarios   int64                      `json:"failed_scenarios"`
	ErrorRate         float64                    `json:"error_rate"`
	ScenariosPerSec   float64                    `json:"scenarios_per_sec"`
	ScenarioLatencyMs latencySummary             `json:"scenario_latency_ms"`
	Operations        map[string]operationReport `json:"operations"`
}

type operationStats struct {
	calls     int64
	success   int64
	failed    int64
	outcomes  map[string]int64
	latencies []float64
}

type collector struct {
	mu         sync.Mutex
	operations map[string]*operationStats
}

func newCollector() *collector {
	return &collector{operations: make(map[string]*operationStats)}
}

func (c *collector) record(operation string, latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.operations[operation]
	if !ok {
		stats = &operationStats{outcomes: make(map[string]int64)}
		c.operations[operation] = stats
	}

	stats.calls++
	if err == nil {
		stats.success++
	} else {
		stats.failed++
	}
	stats.outcomes[outcome(err)]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Operations:      make(map[string]operationReport, len(c.operations)),
	}

	for name, stats := range c.operations {
		outcomes := make(map[string]int64, len(stats.outcomes))
		for key, count := range stats.outcomes {
			outcomes[key] = count
		}
		op := operationReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Outcomes:  outcomes,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
		result.Operations[name] = op

		if name == scenarioMetric {
			result.TotalScenarios = op.Calls
			result.SuccessScenarios = op.Success
			result.FailedScenarios = op.Failed
			result.ErrorRate = op.ErrorRate
			result.ScenarioLatencyMs = op.LatencyMs
		}
	}
	if duration > 0 {
		result.ScenariosPerSec = float64(result.TotalScenarios) / duration.Seconds()
	}
	return result
}

// outcome классифицирует ошибку операции склада по виду.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case domain.IsValidation(err):
		return "validation"
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsInsufficientStock(err):
		return "insufficient_stock"
	case domain.IsInvalidStateTransition(err):
		return "invalid_transition"
	default:
		return "error"
	}
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg       config
		modeValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.storage, "storage", app.StorageDriverMemory, "storage driver: memory | postgres")
	fs.StringVar(&cfg.dsn, "dsn", "", "postgres DSN (fallback: WAREHOUSE_POSTGRES_DSN)")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 1m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 16, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-scenario timeout")
	fs.StringVar(&modeValue, "mode", string(modeConfirm), "load mode: create | confirm | ship")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent instead of the last step (0..100)")
	fs.IntVar(&cfg.stock, "stock", 1_000_000, "initial quantity of the shared load product")
	fs.Float64Var(&cfg.price, "price", 10.0, "price of the shared load product")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = getenv("WAREHOUSE_POSTGRES_DSN")
	}

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	switch {
	case cfg.storage != app.StorageDriverMemory && cfg.storage != app.StorageDriverPostgres:
		return cfg, fmt.Errorf("unsupported storage driver: %s", cfg.storage)
	case cfg.storage == app.StorageDriverPostgres && strings.TrimSpace(cfg.dsn) == "":
		return cfg, errors.New("dsn is required for postgres storage")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case cfg.stock <= 0:
		return cfg, errors.New("stock must be > 0")
	case cfg.price <= 0:
		return cfg, errors.New("price must be > 0")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeConfirm:
		return modeConfirm, nil
	case modeShip:
		return modeShip, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// seedProduct создаёт общий товар, за остаток которого конкурируют все сценарии.
func seedProduct(ctx context.Context, runner *warehouse.Runner, cfg config) (int64, error) {
	var productID int64
	err := runner.Do(ctx, func(ops warehouse.Operations) error {
		product, err := ops.CreateProduct(ctx, "Load Item", cfg.stock, cfg.price)
		if err != nil {
			return err
		}
		productID = product.ID
		return nil
	})
	return productID, err
}

// execute прогоняет сценарии на concurrency воркерах и собирает отчёт.
func execute(ctx context.Context, runner *warehouse.Runner, cfg config) (report, error) {
	productID, err := seedProduct(ctx, runner, cfg)
	if err != nil {
		return report{}, fmt.Errorf("seed product: %w", err)
	}

	startedAt := time.Now()
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				runScenario(ctx, runner, cfg, productID, index, col)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt)), nil
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for i := 0; ; i++ {
		if (cfg.duration <= 0 || cfg.totalSet) && i >= cfg.total {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

// runScenario выполняет один сценарий в собственной единице работы:
// клиент, заказ на один товар, затем подтверждение, отгрузка или отмена по режиму.
func runScenario(ctx context.Context, runner *warehouse.Runner, cfg config, productID int64, index int, col *collector) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	started := time.Now()
	err := runner.Do(ctx, func(ops warehouse.Operations) error {
		customer, err := timed(col, "create_customer", func() (*domain.Customer, error) {
			return ops.CreateCustomer(ctx, fmt.Sprintf("Load Customer %d", index), fmt.Sprintf("load-%d@example.com", index))
		})
		if err != nil {
			return err
		}
		order, err := timed(col, "create_order", func() (*domain.Order, error) {
			return ops.CreateOrder(ctx, customer.ID, []int64{productID})
		})
		if err != nil || cfg.mode == modeCreate {
			return err
		}

		if shouldCancelScenario(index, cfg.cancelRate) {
			_, err = timed(col, "cancel_order", func() (*domain.Order, error) { return ops.CancelOrder(ctx, order.ID) })
			return err
		}

		if _, err = timed(col, "confirm_order", func() (*domain.Order, error) { return ops.ConfirmOrder(ctx, order.ID) }); err != nil {
			return err
		}
		if cfg.mode == modeShip {
			_, err = timed(col, "ship_order", func() (*domain.Order, error) { return ops.ShipOrder(ctx, order.ID) })
		}
		return err
	})
	col.record(scenarioMetric, time.Since(started), err)
}

func timed[T any](col *collector, operation string, call func() (T, error)) (T, error) {
	start := time.Now()
	value, err := call()
	col.record(operation, time.Since(start), err)
	return value, err
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: round3(sorted[0]),
		Max: round3(sorted[len(sorted)-1]),
		Avg: round3(sum / float64(len(sorted))),
		P50: round3(percentile(sorted, 50)),
		P95: round3(percentile(sorted, 95)),
		P99: round3(percentile(sorted, 99)),
	}
}

// percentile считает перцентиль по nearest-rank на отсортированном срезе.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func ratio(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round3(float64(part) / float64(total))
}

func round3(value float64) float64 {
	return math.Round(value*1000) / 1000
}

func printReport(out io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintf(out, "mode=%s storage=%s concurrency=%d\n", cfg.mode, cfg.storage, cfg.concurrency)
	_, _ = fmt.Fprintf(out, "scenarios: total=%d success=%d failed=%d error_rate=%.3f rate=%.1f/s\n",
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate, result.ScenariosPerSec)
	_, _ = fmt.Fprintf(out, "scenario latency ms: p50=%.3f p95=%.3f p99=%.3f max=%.3f\n",
		result.ScenarioLatencyMs.P50, result.ScenarioLatencyMs.P95, result.ScenarioLatencyMs.P99, result.ScenarioLatencyMs.Max)

	names := make([]string, 0, len(result.Operations))
	for name := range result.Operations {
		if name != scenarioMetric {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		op := result.Operations[name]
		_, _ = fmt.Fprintf(out, "  %-16s calls=%d failed=%d p95=%.3fms\n", name, op.Calls, op.Failed, op.LatencyMs.P95)
	}
}

func writeJSONReport(path string, result report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	if err := app.ConfigureLogging(os.Getenv("WAREHOUSE_LOG_LEVEL")); err != nil {
		log.WithError(err).Warn("invalid log level, using info")
	}
	// Сервис логирует каждую операцию, что искажает замеры.
	if os.Getenv("WAREHOUSE_LOG_LEVEL") == "" {
		log.SetLevel(log.WarnLevel)
	}

	ctx := context.Background()
	appCfg := app.DefaultConfig()
	appCfg.StorageDriver = cfg.storage
	appCfg.PostgresDSN = cfg.dsn

	rt, err := app.NewRuntime(ctx, appCfg, nil)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "init runtime: %v\n", err)
		os.Exit(1)
	}

	result, err := execute(ctx, rt.Runner(), cfg)
	_ = rt.Close(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}
