package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/internal/config"
	"papertrader/internal/errors"
	"papertrader/internal/models"
	"papertrader/internal/pricefeed"
	"papertrader/internal/trading"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Broker.InitialCash = 10_000
	cfg.Broker.Slippage = 0
	cfg.Broker.StateFile = filepath.Join(dir, "state.json")
	cfg.Journal.Path = filepath.Join(dir, "journal.db")
	return cfg
}

// run executes one CLI invocation with a fresh App, as a separate process would.
func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	app := NewApp(cfg, zerolog.Nop())
	defer app.Close()

	cmd := NewRootCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func runJSON(t *testing.T, cfg *config.Config, v interface{}, args ...string) {
	t.Helper()
	out, err := run(t, cfg, append(args, "--json")...)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestOrderPersistsAcrossInvocations(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "price", "set", "AAPL", "100")
	require.NoError(t, err)

	var result models.OrderResult
	runJSON(t, cfg, &result, "order", "buy", "AAPL", "10")
	assert.Equal(t, models.OrderStatusFilled, result.Status)
	require.NotNil(t, result.AveragePrice)
	assert.Equal(t, 100.0, *result.AveragePrice)

	var positions []models.Position
	runJSON(t, cfg, &positions, "positions")
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Ticker)
	assert.Equal(t, 10, positions[0].Quantity)

	var account models.AccountInfo
	runJSON(t, cfg, &account, "account")
	assert.InDelta(t, 9_000, account.Cash, 1e-9)
	assert.InDelta(t, 10_000, account.Equity, 1e-9)

	var got models.OrderResult
	runJSON(t, cfg, &got, "orders", result.OrderID)
	assert.Equal(t, result.OrderID, got.OrderID)
}

func TestPendingLimitFillsOnPriceSet(t *testing.T) {
	cfg := testConfig(t)
	_, err := run(t, cfg, "price", "set", "X", "100")
	require.NoError(t, err)

	var pending models.OrderResult
	runJSON(t, cfg, &pending, "order", "buy", "X", "5", "--limit", "90")
	require.Equal(t, models.OrderStatusPending, pending.Status)

	var open []models.OrderResult
	runJSON(t, cfg, &open, "orders", "--status", "open")
	require.Len(t, open, 1)

	var update struct {
		Prices        map[string]float64   `json:"prices"`
		UpdatedOrders []models.OrderResult `json:"updated_orders"`
	}
	runJSON(t, cfg, &update, "price", "set", "X", "89")
	require.Len(t, update.UpdatedOrders, 1)
	assert.Equal(t, pending.OrderID, update.UpdatedOrders[0].OrderID)
	assert.Equal(t, models.OrderStatusFilled, update.UpdatedOrders[0].Status)
	require.NotNil(t, update.UpdatedOrders[0].AveragePrice)
	assert.Equal(t, 90.0, *update.UpdatedOrders[0].AveragePrice)

	runJSON(t, cfg, &open, "orders", "--status", "open")
	assert.Empty(t, open)
}

func TestCancel(t *testing.T) {
	cfg := testConfig(t)
	_, err := run(t, cfg, "price", "set", "X", "100")
	require.NoError(t, err)

	var pending models.OrderResult
	runJSON(t, cfg, &pending, "order", "buy", "X", "5", "--limit", "80", "--tif", "gtc")
	require.Equal(t, models.OrderStatusPending, pending.Status)

	_, err = run(t, cfg, "cancel", pending.OrderID)
	require.NoError(t, err)

	var got models.OrderResult
	runJSON(t, cfg, &got, "orders", pending.OrderID)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)

	_, err = run(t, cfg, "cancel", pending.OrderID)
	assert.ErrorContains(t, err, "not pending")
	_, err = run(t, cfg, "cancel", "no-such-order")
	assert.True(t, errors.Is(err, errors.ErrOrderNotFound))
}

func TestShortAndCloseAll(t *testing.T) {
	cfg := testConfig(t)
	_, err := run(t, cfg, "price", "set", "X", "50", "Y", "20")
	require.NoError(t, err)

	var r models.OrderResult
	runJSON(t, cfg, &r, "order", "short", "X", "10")
	require.Equal(t, models.OrderStatusFilled, r.Status)
	runJSON(t, cfg, &r, "order", "buy", "Y", "10")
	require.Equal(t, models.OrderStatusFilled, r.Status)

	var positions []models.Position
	runJSON(t, cfg, &positions, "positions")
	require.Len(t, positions, 2)
	assert.Equal(t, models.PositionSideShort, positions[0].Side)

	var closed []models.OrderResult
	runJSON(t, cfg, &closed, "close-all")
	require.Len(t, closed, 2)
	assert.Equal(t, "X", closed[0].Ticker)
	assert.Equal(t, models.OrderSideBuy, closed[0].Side)
	assert.Equal(t, models.OrderSideSell, closed[1].Side)

	runJSON(t, cfg, &positions, "positions")
	assert.Empty(t, positions)

	_, err = run(t, cfg, "close", "X")
	assert.ErrorContains(t, err, "no open position")
}

func TestOrderArgumentErrors(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "order", "hold", "X", "1")
	assert.Error(t, err)
	_, err = run(t, cfg, "order", "yolo", "X", "1")
	assert.Error(t, err)
	_, err = run(t, cfg, "order", "buy", "X", "ten")
	assert.Error(t, err)
	_, err = run(t, cfg, "order", "buy", "X", "0")
	assert.Error(t, err)
	_, err = run(t, cfg, "price", "set", "X")
	assert.Error(t, err)
	_, err = run(t, cfg, "price", "set", "X", "-3")
	assert.Error(t, err)

	_, statErr := os.Stat(cfg.Broker.StateFile)
	assert.True(t, os.IsNotExist(statErr), "failed commands must not write state")
}

func TestNoSaveAndReset(t *testing.T) {
	cfg := testConfig(t)
	_, err := run(t, cfg, "price", "set", "X", "10")
	require.NoError(t, err)

	_, err = run(t, cfg, "order", "buy", "X", "10", "--no-save")
	require.NoError(t, err)
	var positions []models.Position
	runJSON(t, cfg, &positions, "positions")
	assert.Empty(t, positions)

	_, err = run(t, cfg, "order", "buy", "X", "10")
	require.NoError(t, err)

	_, err = run(t, cfg, "reset")
	assert.ErrorContains(t, err, "--yes")

	var account models.AccountInfo
	runJSON(t, cfg, &account, "reset", "--yes")
	assert.Equal(t, 10_000.0, account.Cash)
	runJSON(t, cfg, &positions, "positions")
	assert.Empty(t, positions)
}

func TestNoSaveOverridesAutoSave(t *testing.T) {
	cfg := testConfig(t)
	cfg.Broker.AutoSave = true
	_, err := run(t, cfg, "price", "set", "X", "10")
	require.NoError(t, err)

	_, err = run(t, cfg, "order", "buy", "X", "10", "--no-save")
	require.NoError(t, err)
	_, err = run(t, cfg, "order", "buy", "X", "5", "--limit", "8", "--no-save")
	require.NoError(t, err)

	var positions []models.Position
	runJSON(t, cfg, &positions, "positions")
	assert.Empty(t, positions)
	var orders []models.OrderResult
	runJSON(t, cfg, &orders, "orders")
	assert.Empty(t, orders)

	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(replayFile), 0644))
	_, err = run(t, cfg, "replay", path)
	require.NoError(t, err)
	runJSON(t, cfg, &orders, "orders")
	assert.Empty(t, orders, "replay without --state must not auto-save")
}

func TestSummaryText(t *testing.T) {
	cfg := testConfig(t)
	_, err := run(t, cfg, "price", "set", "X", "10")
	require.NoError(t, err)
	_, err = run(t, cfg, "order", "buy", "X", "10")
	require.NoError(t, err)
	_, err = run(t, cfg, "price", "set", "X", "12")
	require.NoError(t, err)

	out, err := run(t, cfg, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "Performance Summary")
	assert.Contains(t, out, "$10,000.00")
	assert.Contains(t, out, "+$20.00")

	var summary models.PerformanceSummary
	runJSON(t, cfg, &summary, "summary")
	assert.InDelta(t, 20, summary.TotalPnL, 1e-9)
	assert.Equal(t, 1, summary.TotalTrades)
}

const replayFile = `date,ticker,close,action,quantity
2024-01-02,AAPL,100,buy,10
2024-01-02,MSFT,50,,
2024-01-03,AAPL,110,,
2024-01-03,MSFT,48,short,20
2024-01-04,AAPL,120,sell,10
2024-01-04,MSFT,45,cover,20
`

func TestReplayUsesFreshLedger(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(replayFile), 0644))

	var report trading.ReplayReport
	runJSON(t, cfg, &report, "replay", path)
	assert.Equal(t, 3, report.Steps)
	assert.Equal(t, 4, report.Filled)
	assert.InDelta(t, 230, report.Summary.TotalPnL, 1e-6)

	_, statErr := os.Stat(cfg.Broker.StateFile)
	assert.True(t, os.IsNotExist(statErr))

	runJSON(t, cfg, &report, "replay", "--state", path)
	var account models.AccountInfo
	runJSON(t, cfg, &account, "account")
	assert.InDelta(t, 10_230, account.Cash, 1e-6)

	out, err := run(t, cfg, "replay", "--dry-run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "0 filled")
	assert.Contains(t, out, "2024-01-02 to 2024-01-04")
}

func TestJournalCommands(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Enabled = true

	_, err := run(t, cfg, "price", "set", "X", "10")
	require.NoError(t, err)
	var pending models.OrderResult
	runJSON(t, cfg, &pending, "order", "buy", "X", "1", "--limit", "9")
	_, err = run(t, cfg, "order", "buy", "X", "2")
	require.NoError(t, err)
	_, err = run(t, cfg, "price", "set", "X", "8")
	require.NoError(t, err)

	var results []models.OrderResult
	runJSON(t, cfg, &results, "journal", "list")
	require.Len(t, results, 2)

	runJSON(t, cfg, &results, "journal", "list", "--status", "filled", "--limit", "1")
	require.Len(t, results, 1)

	out, err := run(t, cfg, "journal", "history", pending.OrderID)
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "filled")

	var stats map[string]int
	runJSON(t, cfg, &stats, "journal", "stats")
	assert.Equal(t, map[string]int{"filled": 2}, stats)
}

func TestConfigCommands(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "trading.yaml")

	_, err := run(t, cfg, "config", "init", path)
	require.NoError(t, err)
	_, err = run(t, cfg, "config", "init", path)
	assert.Error(t, err)
	_, err = run(t, cfg, "config", "init", path, "--force")
	require.NoError(t, err)

	var where map[string]interface{}
	runJSON(t, cfg, &where, "config", "path", "--config", path)
	assert.Equal(t, path, where["path"])

	out, err := run(t, cfg, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "$10,000.00")
	assert.Contains(t, out, "trading_events")

	var valid map[string]bool
	runJSON(t, cfg, &valid, "config", "validate")
	assert.True(t, valid["valid"])

	_, err = run(t, cfg, "config", "show", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBrokenDefaultConfig(t *testing.T) {
	good := filepath.Join(t.TempDir(), "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("broker:\n  initial_cash: 2500\n"), 0644))
	loadErr := errors.Wrap(errors.ErrConfigInvalid, "trading.yaml: yaml: line 1: did not find expected key")

	exec := func(args ...string) (string, error) {
		app := NewApp(testConfig(t), zerolog.Nop())
		app.ConfigErr = loadErr
		defer app.Close()
		cmd := NewRootCmd(app)
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.ExecuteContext(context.Background())
		return out.String(), err
	}

	_, err := exec("account")
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
	_, err = exec("config", "validate")
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)

	_, err = exec("version")
	assert.NoError(t, err)
	_, err = exec("config", "init", filepath.Join(t.TempDir(), "trading.yaml"))
	assert.NoError(t, err)

	_, err = exec("--config", good, "config", "show", "--json")
	assert.NoError(t, err, "--config replaces the broken default")
}

func TestThrottleConfigFromFeedSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Feed.RateLimit = 2.5
	cfg.Feed.Retries = 7
	cfg.Feed.BreakerThreshold = 3
	cfg.Feed.BreakerCooldown = time.Minute

	got := NewApp(cfg, zerolog.Nop()).throttleConfig()
	if got.RateLimit != 2.5 || got.Retries != 7 {
		t.Errorf("rate/retries = %v/%d, want 2.5/7", got.RateLimit, got.Retries)
	}
	if got.BreakerThreshold != 3 || got.BreakerCooldown != time.Minute {
		t.Errorf("breaker = %d/%v, want 3/1m", got.BreakerThreshold, got.BreakerCooldown)
	}
	if want := pricefeed.DefaultThrottleConfig().Timeout; got.Timeout != want {
		t.Errorf("Timeout = %v, want default %v", got.Timeout, want)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, testConfig(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "papertrader v"+Version)
}

func TestUnknownBrokerType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Broker.Type = "alpaca"
	_, err := run(t, cfg, "account")
	assert.True(t, errors.Is(err, errors.ErrBrokerNotImplemented))
}

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer
	output := &Output{writer: &buf}
	table := NewTable(output, "A", "LONG HEADER")
	table.AddRow("wide cell", "x")
	table.AddRow("y", "z")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "A          LONG HEADER", lines[0])
	assert.Equal(t, strings.Repeat("-", 22), lines[1])
	assert.Equal(t, "wide cell  x", lines[2])
	assert.Equal(t, "y          z", lines[3])
}

func TestPaintAndStripANSI(t *testing.T) {
	colored := &Output{colorEnabled: true}
	plain := &Output{}

	red := colored.Red("loss")
	assert.NotEqual(t, "loss", red)
	assert.Equal(t, "loss", stripANSI(red))
	assert.Equal(t, "loss", plain.Red("loss"))
	assert.Equal(t, "+$5.00", plain.FormatPnL(5))
	assert.Equal(t, "-$5.00", stripANSI(colored.FormatPnL(-5)))
}
