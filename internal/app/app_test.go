package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/config"
	"tradewatch/internal/model"
	"tradewatch/internal/storage"
)

func sampleCandles() []model.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	out := make([]model.Candle, 5)
	for i := range out {
		price := 100 + float64(i)
		out[i] = model.Candle{Time: start + int64(i)*3600, Open: price, High: price + 2, Low: price - 1, Close: price + 1, Volume: 1000}
	}
	return out
}

func TestWriteCandlesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "candles.csv")
	if err := writeCandlesCSV(path, sampleCandles()); err != nil {
		t.Fatalf("写入 CSV 失败: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 || rows[0][0] != "open_time" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[1][0] != "2024-01-01T00:00:00Z" || rows[1][4] != "101" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
}

func TestWriteCandlesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candles.png")
	if err := writeCandlesPNG(path, "BTCUSDT 1h", sampleCandles()); err != nil {
		t.Fatalf("render png: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Fatal("output is not a PNG")
	}
}

func TestPrintEvents(t *testing.T) {
	var buf bytes.Buffer
	msg := "discord webhook failed with status 500:\nboom"
	events := []storage.TriggerEvent{{
		Symbol: "BTCUSDT", Condition: "above", Threshold: "70000", Price: 71000.5,
		Error: &msg, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	if err := printEvents(&buf, events); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "71000.5") || strings.Contains(out, "500:\nboom") {
		t.Fatalf("unexpected output %q", out)
	}

	buf.Reset()
	_ = printEvents(&buf, nil)
	if !strings.Contains(buf.String(), "no trigger events") {
		t.Fatalf("unexpected empty output %q", buf.String())
	}
}

func testConfig(exchangeURL string) *config.Config {
	return &config.Config{
		Exchange: config.ExchangeConfig{BaseURL: exchangeURL, RequestTimeout: time.Second, DefaultCandleLimit: 10, MaxPages: 1},
		Simulator: config.SimulatorConfig{Seed: 7},
		Export:    config.ExportConfig{MaxCandles: 10},
	}
}

func TestExportFallsBackToSimulatedCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnavailableForLegalReasons)
		_, _ = w.Write([]byte(`{"code":0,"msg":"restricted location"}`))
	}))
	defer srv.Close()

	a := NewApp(testConfig(srv.URL), zerolog.Nop())
	path := filepath.Join(t.TempDir(), "sim.csv")
	if err := a.Export(context.Background(), ExportOptions{Symbol: "ethusdt", Interval: "15m", CSVPath: path}); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 11 {
		t.Fatalf("expected header + 10 simulated rows, got %d lines", lines)
	}
}

func TestExportValidatesOptions(t *testing.T) {
	a := NewApp(testConfig("http://127.0.0.1:0"), zerolog.Nop())
	if err := a.Export(context.Background(), ExportOptions{Symbol: "BTCUSDT"}); err == nil {
		t.Fatal("missing output paths should fail")
	}
	if err := a.Export(context.Background(), ExportOptions{CSVPath: "x.csv"}); err == nil {
		t.Fatal("missing symbol should fail")
	}
}

func TestHistoryRequiresDatabase(t *testing.T) {
	a := NewApp(testConfig("http://127.0.0.1:0"), zerolog.Nop())
	if err := a.History(context.Background(), HistoryOptions{Limit: 5}); err == nil {
		t.Fatal("history without database should fail")
	}
}
