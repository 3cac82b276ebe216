package bars

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"RegimeCast/internal/dbn"
	"RegimeCast/internal/domain/models"
)

func bar(sec int64, close float64) models.Bar {
	return models.Bar{
		Start:  time.Unix(sec, 0).UTC(),
		Symbol: "SPY",
		Open:   close,
		High:   close,
		Low:    close,
		Close:  close,
		Volume: 1,
	}
}

func TestLabel(t *testing.T) {
	up := bar(60, 101)
	down := bar(120, 99)
	flat := bar(180, 101)

	if got := Label(bar(0, 100), up); got != dbn.LabelUp {
		t.Fatalf("expected up, got %s", got)
	}
	if got := Label(up, down); got != dbn.LabelDown {
		t.Fatalf("expected down, got %s", got)
	}
	// A flat close counts as up.
	if got := Label(up, flat); got != dbn.LabelUp {
		t.Fatalf("expected up for flat close, got %s", got)
	}
}

func TestObservations(t *testing.T) {
	series := []models.Bar{bar(0, 100), bar(60, 101), bar(120, 99)}

	recs := Observations(dbn.NodePriceMove, series)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Values[dbn.NodePriceMove] != dbn.LabelUp {
		t.Fatalf("expected up, got %v", recs[0].Values)
	}
	if recs[1].Values[dbn.NodePriceMove] != dbn.LabelDown {
		t.Fatalf("expected down, got %v", recs[1].Values)
	}
	if !recs[0].Timestamp.Equal(series[1].Start) {
		t.Fatalf("record timestamp should be the bar start, got %v", recs[0].Timestamp)
	}
}

func TestObservationsTooShort(t *testing.T) {
	if recs := Observations(dbn.NodePriceMove, []models.Bar{bar(0, 100)}); recs != nil {
		t.Fatalf("expected nil for single bar, got %v", recs)
	}
}

func writeBarsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write bars file: %v", err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeBarsFile(t,
		"timestamp,open,high,low,close,volume\n"+
			"2024-01-02T09:30:00Z,100,101,99,100.5,1200\n"+
			"2024-01-02T09:31:00Z,100.5,102,100,101.2,900\n")

	series, err := LoadCSV(path, "SPY")
	if err != nil {
		t.Fatalf("load csv: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(series))
	}
	if series[0].Symbol != "SPY" {
		t.Fatalf("expected symbol SPY, got %s", series[0].Symbol)
	}
	if series[1].Close != 101.2 {
		t.Fatalf("expected close 101.2, got %v", series[1].Close)
	}
	if !series[1].Start.After(series[0].Start) {
		t.Fatalf("bars out of order: %v then %v", series[0].Start, series[1].Start)
	}
}

func TestLoadCSVUnixTimestamps(t *testing.T) {
	path := writeBarsFile(t,
		"1704187800,100,101,99,100.5,1200\n"+
			"1704187860,100.5,102,100,101.2,900\n")

	series, err := LoadCSV(path, "SPY")
	if err != nil {
		t.Fatalf("load csv: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(series))
	}
	if series[0].Start.Unix() != 1704187800 {
		t.Fatalf("unexpected start %v", series[0].Start)
	}
}

func TestLoadCSVOutOfOrder(t *testing.T) {
	path := writeBarsFile(t,
		"2024-01-02T09:31:00Z,100,101,99,100.5,1200\n"+
			"2024-01-02T09:30:00Z,100.5,102,100,101.2,900\n")

	if _, err := LoadCSV(path, "SPY"); err == nil {
		t.Fatal("expected error for out-of-order rows")
	}
}

func TestLoadCSVBadNumber(t *testing.T) {
	path := writeBarsFile(t, "2024-01-02T09:30:00Z,100,xx,99,100.5,1200\n")

	if _, err := LoadCSV(path, "SPY"); err == nil {
		t.Fatal("expected error for bad number")
	}
}

func TestLoadCSVMissingFile(t *testing.T) {
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), "SPY"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
