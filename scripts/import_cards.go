package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/projectcards/project-game-server/internal/definition"
	apperrors "github.com/projectcards/project-game-server/internal/errors"
	"gopkg.in/yaml.v3"
)

// cardColumns are the CSV headers understood by the importer. Only id is
// mandatory; list columns separate items with ";".
var cardColumns = []string{
	"id", "type", "domain", "phases", "title", "description",
	"costBudget", "costTime", "valueDelta",
	"options", "correctAnswer", "comment",
}

var intColumns = map[string]bool{"costBudget": true, "costTime": true, "valueDelta": true, "correctAnswer": true}

var listColumns = map[string]bool{"phases": true, "options": true}

func main() {
	basePath := flag.String("base", "config/game.json", "definition document the cards are merged into")
	csvPath := flag.String("csv", "data/cards.csv", "CSV export of the card catalog")
	outPath := flag.String("out", "", "output path (default: overwrite -base)")
	flag.Parse()

	if *outPath == "" {
		*outPath = *basePath
	}

	fmt.Println("=== Card Catalog Import ===")
	fmt.Printf("Base document: %s\n", *basePath)
	fmt.Printf("CSV file: %s\n", *csvPath)

	doc, err := readDocument(*basePath)
	if err != nil {
		log.Fatalf("Failed to read base document: %v", err)
	}

	file, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("Failed to open CSV file: %v", err)
	}
	defer file.Close()

	startTime := time.Now()
	rows, err := readCards(file)
	if err != nil {
		log.Fatalf("Failed to read CSV: %v", err)
	}
	fmt.Printf("Found %d cards in CSV\n", len(rows))

	added, replaced := mergeCards(doc, rows)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode document: %v", err)
	}

	def, err := definition.Parse(data, definition.FormatJSON)
	if err != nil {
		fmt.Println("✗ Merged document is invalid:")
		for _, problem := range apperrors.DetailsOf(err) {
			fmt.Printf("  - %s\n", problem)
		}
		os.Exit(1)
	}

	if err := os.WriteFile(*outPath, append(data, '\n'), 0o644); err != nil {
		log.Fatalf("Failed to write %s: %v", *outPath, err)
	}

	fmt.Println("\n=== Import Complete ===")
	fmt.Printf("✓ Added: %d cards\n", added)
	fmt.Printf("✓ Replaced: %d cards\n", replaced)
	fmt.Printf("Catalog size: %d cards\n", def.Catalog.Len())
	for _, w := range def.Warnings {
		fmt.Printf("! %s\n", w)
	}
	fmt.Printf("Time taken: %s\n", time.Since(startTime))
	fmt.Printf("Written to: %s\n", *outPath)
}

// readDocument loads a JSON or YAML definition as a generic tree so that
// fields the importer does not know about survive the rewrite.
func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	switch definition.FormatFromPath(path) {
	case definition.FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// readCards converts CSV rows into card objects keyed by the header row.
func readCards(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	known := make(map[string]bool, len(cardColumns))
	for _, c := range cardColumns {
		known[c] = true
	}
	hasID := false
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == "id" {
			hasID = true
		}
		if !known[header[i]] {
			log.Printf("Warning: ignoring unknown column %q", header[i])
		}
	}
	if !hasID {
		return nil, fmt.Errorf("header has no id column")
	}

	var cards []map[string]any
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		card := map[string]any{}
		for i, value := range record {
			if i >= len(header) || !known[header[i]] {
				continue
			}
			col, value := header[i], strings.TrimSpace(value)
			if value == "" {
				continue
			}
			switch {
			case intColumns[col]:
				n, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("line %d: column %s: %q is not a number", line, col, value)
				}
				card[col] = n
			case listColumns[col]:
				card[col] = splitList(value)
			default:
				card[col] = value
			}
		}
		if card["id"] == nil {
			log.Printf("Warning: skipping line %d - no id", line)
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func splitList(s string) []any {
	var out []any
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// mergeCards replaces cards with matching ids and appends the rest. A
// replaced card keeps its conditions; CSV rows cannot express them.
func mergeCards(doc map[string]any, rows []map[string]any) (added, replaced int) {
	existing, _ := doc["cards"].([]any)
	index := make(map[string]int, len(existing))
	for i, c := range existing {
		if card, ok := c.(map[string]any); ok {
			if id, ok := card["id"].(string); ok {
				index[id] = i
			}
		}
	}

	for _, row := range rows {
		id := row["id"].(string)
		if i, ok := index[id]; ok {
			if old, ok := existing[i].(map[string]any); ok {
				for _, key := range []string{"conditions", "effects"} {
					if v, ok := old[key]; ok {
						row[key] = v
					}
				}
			}
			existing[i] = row
			replaced++
			continue
		}
		index[id] = len(existing)
		existing = append(existing, row)
		added++
	}
	doc["cards"] = existing
	return added, replaced
}
