package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format is an on-disk encoding of a Bundle.
type Format string

const (
	FormatJSON    Format = "json"
	FormatYAML    Format = "yaml"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatYAML, FormatMsgpack:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Result is the response to one request, labelled with what was asked.
type Result struct {
	Key      string   `json:"key" yaml:"key" msgpack:"key"`
	OutputID string   `json:"output_id" yaml:"output_id" msgpack:"output_id"`
	Response Response `json:"response" yaml:"response" msgpack:"response"`
}

// Bundle is everything extracted from one audio file.
type Bundle struct {
	ID          string    `json:"id" yaml:"id" msgpack:"id"`
	SessionID   string    `json:"session_id" yaml:"session_id" msgpack:"session_id"`
	AudioPath   string    `json:"audio_path" yaml:"audio_path" msgpack:"audio_path"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at" msgpack:"generated_at"`
	Results     []Result  `json:"results" yaml:"results" msgpack:"results"`
}

// NewBundle stamps results from audioPath with a fresh id.
func NewBundle(audioPath string, results []Result) Bundle {
	return Bundle{
		ID:          uuid.NewString(),
		AudioPath:   audioPath,
		GeneratedAt: time.Now().UTC(),
		Results:     results,
	}
}

func mkSessionDir(outputsRoot string, now time.Time) (string, string, error) {
	sid := "session_" + now.Format("20060102-150405")
	dir := filepath.Join(outputsRoot, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

// Encode writes v to w in format f.
func Encode(w io.Writer, f Format, v any) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(v)
	}
	return fmt.Errorf("unknown output format %q", f)
}

func writeFile(path string, f Format, v any) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(out, f, v); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Persist writes the bundle into a new session directory under
// outputsRoot and returns the session id and the file written.
func Persist(outputsRoot string, b Bundle, f Format) (sessionID, path string, err error) {
	sid, dir, err := mkSessionDir(outputsRoot, b.GeneratedAt)
	if err != nil {
		return "", "", err
	}
	b.SessionID = sid
	path = filepath.Join(dir, "features."+string(f))
	if err := writeFile(path, f, b); err != nil {
		return "", "", fmt.Errorf("persist %s: %w", path, err)
	}
	return sid, path, nil
}
