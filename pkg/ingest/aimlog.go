// pkg/ingest/aimlog.go
package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/chartcsv/import-engine/pkg/model"
)

// AimTrainerColumns is the fixed column set of an aim-trainer results
// export, in file order.
var AimTrainerColumns = []string{
	"challengeName",
	"shotsHit",
	"kills",
	"weapon",
	"accuracy",
	"damage",
	"criticalShots",
	"totalShots",
	"roundTime",
}

var timestampPattern = regexp.MustCompile(`aimtrainer_results_(\d+)`)

// ExtractTimestamp pulls the batch timestamp out of an export file name
// like "aimtrainer_results_1699123456.txt". Files without one get 0.
func ExtractTimestamp(fileName string) int64 {
	m := timestampPattern.FindStringSubmatch(fileName)
	if m == nil {
		return 0
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// ParseAimTrainerResults parses an aim-trainer export: free-form text
// until a CSV header line containing "ChallengeName", then comma-
// separated result lines. Short lines are skipped; a record is kept
// only when it names a challenge and a weapon and reports at least one
// shot. Accuracy drops its "%" suffix, and placeholder values (na, nd,
// "-") read as zero.
func ParseAimTrainerResults(content, fileName string) ([]model.Row, error) {
	lines := strings.Split(content, "\n")

	headerIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "ChallengeName") {
			headerIndex = i
			break
		}
	}
	if headerIndex == -1 {
		return nil, fmt.Errorf("no results header found in %s", fileName)
	}

	var records []model.Row
	for _, line := range lines[headerIndex+1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 9 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		accuracy := strings.TrimSuffix(parts[4], "%")
		if strings.Contains(accuracy, "na") || strings.Contains(accuracy, "nd") || strings.Contains(accuracy, "-") {
			accuracy = "0"
		}

		record := model.Row{
			"challengeName": model.String(parts[0]),
			"shotsHit":      model.Number(parseIntField(parts[1])),
			"kills":         model.Number(parseIntField(parts[2])),
			"weapon":        model.String(parts[3]),
			"accuracy":      model.Number(parseFloatField(accuracy)),
			"damage":        model.Number(parseIntField(parts[5])),
			"criticalShots": model.Number(parseIntField(parts[6])),
			"totalShots":    model.Number(parseIntField(parts[7])),
			"roundTime":     model.Number(parseIntField(parts[8])),
		}

		if parts[0] != "" && parts[3] != "" && parseIntField(parts[7]) > 0 {
			records = append(records, record)
		}
	}

	return records, nil
}

func parseIntField(s string) float64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return float64(n)
}

func parseFloatField(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
