// Package definition loads and validates game definition documents.
//
// A document supplies the game info, settings, phase configuration and card
// catalog. Source data exposes several concepts under alternate field names;
// those are normalized here once so the rest of the engine only sees the
// canonical catalog.Card and rules.PhaseConfig shapes. Validation collects
// every problem before failing, and a document is either accepted whole or
// rejected with the full list.
package definition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/projectcards/project-game-server/internal/catalog"
	apperrors "github.com/projectcards/project-game-server/internal/errors"
	"github.com/projectcards/project-game-server/internal/game/rules"
	"gopkg.in/yaml.v3"
)

// Format is the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format by file extension. Unknown extensions are
// treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// GameInfo is descriptive metadata about the game.
type GameInfo struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Settings are the starting resources and engine tunables.
type Settings struct {
	InitialBudget  int             `json:"initialBudget"`
	InitialTime    int             `json:"initialTime"`
	InitialValue   int             `json:"initialValue"`
	QuizReward     int             `json:"quizReward"`
	SuccessMessage string          `json:"successMessage"`
	DrawScope      rules.DrawScope `json:"drawScope"`
}

// DefaultSuccessMessage is used when a document does not set one.
const DefaultSuccessMessage = "All required cards were played."

// Definition is a validated game definition.
type Definition struct {
	Info     GameInfo
	Settings Settings
	Phases   *rules.Phases
	Catalog  *catalog.Catalog

	// Warnings are non-fatal diagnostics such as condition references to
	// ids missing from the catalog.
	Warnings []string
}

// Load reads and validates a document from disk.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return Parse(data, FormatFromPath(path))
}

// Decode reads and validates a document from r.
func Decode(r io.Reader, format Format) (*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	return Parse(data, format)
}

// Parse validates a document. On failure the returned error carries the
// code INVALID_CONFIGURATION and the list of every validation problem.
func Parse(data []byte, format Format) (*Definition, error) {
	raw, err := decodeRaw(data, format)
	if err != nil {
		return nil, apperrors.WithDetails(apperrors.CodeInvalidConfiguration,
			"invalid game definition", []string{err.Error()})
	}
	root, ok := asObject(raw)
	if !ok {
		return nil, apperrors.WithDetails(apperrors.CodeInvalidConfiguration,
			"invalid game definition", []string{"document must be an object"})
	}

	n := &normalizer{}
	def := n.normalize(root)
	if len(n.problems) > 0 {
		return nil, apperrors.WithDetails(apperrors.CodeInvalidConfiguration,
			fmt.Sprintf("invalid game definition: %d problem(s)", len(n.problems)), n.problems)
	}
	return def, nil
}

func decodeRaw(data []byte, format Format) (any, error) {
	var raw any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}
	return raw, nil
}
