package ml

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// syntheticDataset builds n vehicles whose range depends mostly on battery size.
func syntheticDataset(n int, seed int64) *Dataset {
	rnd := rand.New(rand.NewSource(seed))
	dataset := &Dataset{Features: FeatureNames()}
	for i := 0; i < n; i++ {
		battery := 30 + rnd.Float64()*90
		speed := 120 + rnd.Float64()*130
		accel := 3 + rnd.Float64()*9
		length := 3800 + rnd.Float64()*1400
		row := []float64{
			speed,
			battery,
			float64(200 + rnd.Intn(6000)),
			200 + rnd.Float64()*600,
			accel,
			50 + rnd.Float64()*200,
			rnd.Float64() * 2000,
			length,
			1750 + rnd.Float64()*250,
		}
		target := battery*6 - accel*4 + (length-4500)*0.01 + rnd.NormFloat64()*5
		dataset.X = append(dataset.X, row)
		dataset.Y = append(dataset.Y, target)
	}
	return dataset
}

func writeDatasetCSV(t *testing.T, dataset *Dataset) string {
	t.Helper()
	return writeDatasetCSVWithTarget(t, dataset, Target)
}

func writeDatasetCSVWithTarget(t *testing.T, dataset *Dataset, target string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("brand,model," + strings.Join(dataset.Features, ",") + "," + target + "\n")
	for i, row := range dataset.X {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprintf("%g", v)
		}
		fmt.Fprintf(&b, "Acme,M%d,%s,%g\n", i, strings.Join(cells, ","), dataset.Y[i])
	}
	path := filepath.Join(t.TempDir(), "ev.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func testParams() ForestParams {
	return ForestParams{NEstimators: 15, MaxDepth: 8, MinSamplesSplit: 2, MinSamplesLeaf: 1}
}

func sampleRow() FeatureRow {
	return FormInput{BatteryKWh: 60, TopSpeedKmh: 180, LengthMM: 4500, AccelerationS: 7}.Row()
}
