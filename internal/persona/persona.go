// Package persona loads the assistant's voice: prompt templates, canned
// replies and operator alert texts, from a YAML file.
package persona

import (
	"bytes"
	_ "embed"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// File mirrors the YAML layout.
type File struct {
	BotName   string              `yaml:"bot_name"`
	Prompts   map[string]string   `yaml:"prompts"`
	Relations Relations           `yaml:"relations"`
	Errors    map[string][]string `yaml:"errors"`
	Commands  map[string]string   `yaml:"commands"`
	Private   map[string]string   `yaml:"private"`
	Alerts    map[string]string   `yaml:"alerts"`
	Voice     map[string]string   `yaml:"voice"`
	Features  map[string]string   `yaml:"features"`
	Reactions []string            `yaml:"reactions"`
}

// Relations are the dossier status lines by relationship score.
type Relations struct {
	Enemy   string `yaml:"enemy"`
	Friend  string `yaml:"friend"`
	Neutral string `yaml:"neutral"`
}

// Persona is a parsed, validated persona file.
type Persona struct {
	file      File
	templates map[string]*template.Template
}

var requiredKeys = []string{
	"prompts.system", "prompts.main_chat", "prompts.should_search",
	"prompts.analyze_immediate", "prompts.analyze_batch", "prompts.analyze_chat_profile",
	"prompts.reaction", "prompts.transcription", "prompts.perplexity_system",
	"commands.help", "commands.version", "commands.mute_on", "commands.mute_off", "commands.reset_done",
	"private.info_text",
	"alerts.crash", "alerts.all_keys_exhausted", "alerts.new_day",
	"features.long_response_suffix",
}

// Default returns the persona compiled into the binary.
func Default() (*Persona, error) {
	return Parse(defaultYAML)
}

// Load reads a persona file. An empty path yields the default persona.
func Load(path string) (*Persona, error) {
	if path == "" {
		return Default()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("op=persona.Load: %w", err)
	}
	// #nosec G304 -- operator-supplied config path
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("op=persona.Load: %w", err)
	}
	p, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("op=persona.Load: %s: %w", absPath, err)
	}
	return p, nil
}

// Parse decodes and validates YAML content.
func Parse(content []byte) (*Persona, error) {
	var f File
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	p := &Persona{file: f, templates: make(map[string]*template.Template)}
	sections := map[string]map[string]string{
		"prompts":  f.Prompts,
		"commands": f.Commands,
		"private":  f.Private,
		"alerts":   f.Alerts,
		"voice":    f.Voice,
		"features": f.Features,
	}
	for section, entries := range sections {
		for key, text := range entries {
			name := section + "." + key
			tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
			if err != nil {
				return nil, fmt.Errorf("template %s: %w", name, err)
			}
			p.templates[name] = tmpl
		}
	}
	var missing []string
	for _, key := range requiredKeys {
		if _, ok := p.templates[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing keys: %s", strings.Join(missing, ", "))
	}
	if len(f.Errors["default"]) == 0 {
		return nil, fmt.Errorf("missing keys: errors.default")
	}
	return p, nil
}

// BotName is the display name used for the assistant in history.
func (p *Persona) BotName() string { return p.file.BotName }

// Reactions is the allowed emoji set for message reactions.
func (p *Persona) Reactions() []string { return slices.Clone(p.file.Reactions) }

// Text renders the template at key ("section.name") with data.
// Unknown keys and render failures yield "" and a log line.
func (p *Persona) Text(key string, data any) string {
	tmpl, ok := p.templates[key]
	if !ok {
		slog.Warn("persona key not found", slog.String("key", key))
		return ""
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slog.Warn("persona render failed", slog.String("key", key), slog.Any("error", err))
		return ""
	}
	return buf.String()
}

// Relation maps a 0..100 relationship score to its dossier line.
// Zero means unknown and is treated as neutral.
func (p *Persona) Relation(score int) string {
	if score == 0 {
		score = 50
	}
	switch {
	case score <= 20:
		return p.file.Relations.Enemy
	case score >= 80:
		return p.file.Relations.Friend
	default:
		return p.file.Relations.Neutral
	}
}

// ErrorCategory buckets raw error text into a degraded-reply group.
func ErrorCategory(errText string) string {
	lower := strings.ToLower(errText)
	switch {
	case strings.Contains(lower, "429") || strings.Contains(lower, "quota") || strings.Contains(lower, "exhausted"):
		return "quota"
	case strings.Contains(lower, "503") || strings.Contains(lower, "overload") || strings.Contains(lower, "unavailable"):
		return "overload"
	case strings.Contains(lower, "safety") || strings.Contains(lower, "blocked"):
		return "safety"
	default:
		return "default"
	}
}

// ErrorReply picks a canned reply for errText. The choice is a pure
// function of the text, so the same failure always reads the same.
func (p *Persona) ErrorReply(errText string) string {
	replies := p.file.Errors[ErrorCategory(errText)]
	if len(replies) == 0 {
		replies = p.file.Errors["default"]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(errText))
	return replies[int(h.Sum32()%uint32(len(replies)))]
}

// Keys lists every template key, sorted. Used by the admin API.
func (p *Persona) Keys() []string {
	keys := make([]string, 0, len(p.templates))
	for k := range p.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
