package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"tradewatch/internal/model"
)

// Export renders candle history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))
	if symbol == "" {
		return errors.New("--symbol is required")
	}
	interval := opts.Interval
	if interval == "" {
		interval = "1h"
	}
	limit := a.Config.ResolveCandleLimit(opts.Limit)

	candles, fallback := a.newGateway().Candles(ctx, symbol, interval, limit)
	if len(candles) == 0 {
		a.Logger.Info().Str("symbol", symbol).Msg("no candles found for export")
		return nil
	}
	a.Logger.Info().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("exported", len(candles)).
		Bool("simulated", fallback).
		Msg("exporting candles")

	if opts.CSVPath != "" {
		if err := writeCandlesCSV(opts.CSVPath, candles); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		title := symbol + " " + interval
		if fallback {
			title += " (simulated)"
		}
		if err := writeCandlesPNG(opts.PNGPath, title, candles); err != nil {
			return err
		}
	}

	return nil
}

func writeCandlesCSV(path string, candles []model.Candle) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"open_time", "open", "high", "low", "close", "volume"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, c := range candles {
		record := []string{
			time.Unix(c.Time, 0).UTC().Format(time.RFC3339),
			formatFloat(c.Open),
			formatFloat(c.High),
			formatFloat(c.Low),
			formatFloat(c.Close),
			formatFloat(c.Volume),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeCandlesPNG(path, title string, candles []model.Candle) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(candles))
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))

	for i, c := range candles {
		x[i] = time.Unix(c.Time, 0).UTC()
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Volume",
			ValueFormatter: chart.FloatValueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: x,
				YValues: closes,
			},
			chart.TimeSeries{
				Name:    "High",
				XValues: x,
				YValues: highs,
				Style:   chart.Style{StrokeColor: chart.ColorGreen, StrokeDashArray: []float64{4, 2}},
			},
			chart.TimeSeries{
				Name:    "Low",
				XValues: x,
				YValues: lows,
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeDashArray: []float64{4, 2}},
			},
			chart.TimeSeries{
				Name:    "Volume",
				XValues: x,
				YValues: volumes,
				YAxis:   chart.YAxisSecondary,
				Style:   chart.Style{StrokeColor: chart.ColorAlternateGray, FillColor: chart.ColorAlternateGray.WithAlpha(64)},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
