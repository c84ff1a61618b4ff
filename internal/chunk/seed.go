package chunk

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SeedDoc is the parsed shape of one crop seed YAML file. Every section is
// optional except crop metadata; unknown sections are ignored.
type SeedDoc struct {
	Crop     CropMeta       `yaml:"crop"`
	Overview string         `yaml:"overview"`
	Stages   []StageEntry   `yaml:"stages"`
	Defaults *Defaults      `yaml:"defaults"`
	Warnings []WarningEntry `yaml:"warnings"`
	FAQ      []FAQEntry     `yaml:"faq"`
}

// CropMeta identifies the crop a seed document describes. ID and Variety are
// required; a document missing either is skipped by the ingestion pipeline.
type CropMeta struct {
	ID           string `yaml:"id"`
	Variety      string `yaml:"variety"`
	Lang         string `yaml:"lang"`
	DisplayName  string `yaml:"displayName"`
	DefaultStage string `yaml:"defaultStage"`
}

// StageEntry describes one growth stage: identifying cues and free-text
// guidance.
type StageEntry struct {
	ID       string   `yaml:"id"`
	Label    string   `yaml:"label"`
	Cues     []string `yaml:"cues"`
	Guidance string   `yaml:"guidance"`
}

// WarningEntry is a single cautionary note, optionally scoped to a stage.
type WarningEntry struct {
	Stage string `yaml:"stage"`
	Text  string `yaml:"text"`
}

// FAQEntry is one question/answer pair.
type FAQEntry struct {
	Q string `yaml:"q"`
	A string `yaml:"a"`
}

// Defaults holds grouped key/value settings (climate, watering, nutrients...)
// in document order. Plain map decoding would lose the author's ordering, so
// decoding walks the YAML node directly.
type Defaults struct {
	Groups []DefaultGroup
}

// DefaultGroup is one named group of defaults. Either Entries (mapping) or
// Scalar (anything else, rendered as text) is populated.
type DefaultGroup struct {
	Name    string
	Entries []DefaultEntry
	Scalar  string
}

// DefaultEntry is a single key/value default.
type DefaultEntry struct {
	Key   string
	Value string
}

// UnmarshalYAML decodes the defaults mapping preserving group and key order.
func (d *Defaults) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("defaults: expected mapping, got %v", node.Kind)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		group := DefaultGroup{Name: keyNode.Value}
		if valNode.Kind == yaml.MappingNode {
			for j := 0; j+1 < len(valNode.Content); j += 2 {
				group.Entries = append(group.Entries, DefaultEntry{
					Key:   valNode.Content[j].Value,
					Value: valNode.Content[j+1].Value,
				})
			}
		} else {
			var v any
			if err := valNode.Decode(&v); err != nil {
				return fmt.Errorf("defaults group %q: %w", keyNode.Value, err)
			}
			group.Scalar = fmt.Sprintf("%v", v)
		}
		d.Groups = append(d.Groups, group)
	}
	return nil
}

// ParseSeedDoc decodes one seed YAML document.
func ParseSeedDoc(data []byte) (*SeedDoc, error) {
	var doc SeedDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing seed document: %w", err)
	}
	return &doc, nil
}

// Raw is one chunk of seed text tagged with its retrieval metadata, before
// embedding. Stage is empty for crop-wide material.
type Raw struct {
	CropID     string
	Lang       string
	Stage      string
	SourcePath string
	Text       string
}

// Display returns the human-readable crop name, falling back from
// displayName to variety to id.
func (m CropMeta) Display() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	if m.Variety != "" {
		return m.Variety
	}
	return m.ID
}

// BuildSeedChunks renders every section of a seed document into framed text,
// splits each into bounded chunks, and tags them with crop, language, stage
// and source path. Section order is overview, stages, defaults, warnings, FAQ.
func BuildSeedChunks(doc *SeedDoc, sourcePath string) []Raw {
	cropID := doc.Crop.ID
	lang := doc.Crop.Lang
	if lang == "" {
		lang = "en"
	}
	defaultStage := doc.Crop.DefaultStage

	var results []Raw
	add := func(text, stage string) {
		for _, c := range Split(text) {
			results = append(results, Raw{
				CropID:     cropID,
				Lang:       lang,
				Stage:      stage,
				SourcePath: sourcePath,
				Text:       c,
			})
		}
	}

	if doc.Overview != "" {
		add(fmt.Sprintf("Overview for %s\n\n%s", doc.Crop.Display(), strings.TrimSpace(doc.Overview)), defaultStage)
	}

	for _, stage := range doc.Stages {
		label := stage.Label
		if label == "" {
			label = stage.ID
		}
		parts := []string{"Stage: " + label}
		if len(stage.Cues) > 0 {
			parts = append(parts, "Cues:\n- "+strings.Join(stage.Cues, "\n- "))
		}
		if stage.Guidance != "" {
			parts = append(parts, stage.Guidance)
		}
		add(strings.Join(parts, "\n\n"), stage.ID)
	}

	if doc.Defaults != nil {
		if text := formatDefaults(doc.Defaults); text != "" {
			add("Defaults\n\n"+text, defaultStage)
		}
	}

	for _, warning := range doc.Warnings {
		text := "Warning"
		if warning.Stage != "" {
			text += " (" + warning.Stage + ")"
		}
		text += ": " + warning.Text
		add(text, warning.Stage)
	}

	for _, faq := range doc.FAQ {
		add(fmt.Sprintf("Q: %s\nA: %s", faq.Q, faq.A), defaultStage)
	}

	return results
}

// BuildMarkdownChunks splits companion markdown into crop-wide chunks.
func BuildMarkdownChunks(text, cropID, lang, sourcePath string) []Raw {
	var results []Raw
	for _, c := range Split(text) {
		results = append(results, Raw{
			CropID:     cropID,
			Lang:       lang,
			SourcePath: sourcePath,
			Text:       c,
		})
	}
	return results
}

func formatDefaults(defaults *Defaults) string {
	var lines []string
	for _, group := range defaults.Groups {
		lines = append(lines, strings.ToUpper(group.Name)+":")
		if len(group.Entries) > 0 {
			for _, entry := range group.Entries {
				lines = append(lines, fmt.Sprintf("- %s: %s", entry.Key, entry.Value))
			}
		} else {
			lines = append(lines, group.Scalar)
		}
		lines = append(lines, "")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
