package workflow

// Config is the user-supplied text a run is built from: the narrative under
// review, one system prompt and model choice per step, and the JSON schema
// for structured steps.
type Config struct {
	Narrative string            `json:"narrative" yaml:"narrative"`
	Prompts   map[string]string `json:"prompts" yaml:"prompts"`
	Models    map[string]int    `json:"models" yaml:"models"`
	Schema    string            `json:"schema" yaml:"schema"`
	// SlowDown adds a short pause after every streamed increment so the
	// incremental rendering can be observed.
	SlowDown bool `json:"slowDown" yaml:"slow_down"`
}

// Prompt returns the system prompt for a step.
func (c Config) Prompt(title string) string {
	return c.Prompts[title]
}

// ModelIndex returns the catalog index selected for a step (0 if unset).
func (c Config) ModelIndex(title string) int {
	return c.Models[title]
}

// WithDefaults returns a copy of c with empty prompts, unset models and an
// empty schema taken from d.
func (c Config) WithDefaults(d Config) Config {
	out := c
	out.Prompts = make(map[string]string, len(d.Prompts)+len(c.Prompts))
	for k, v := range d.Prompts {
		out.Prompts[k] = v
	}
	for k, v := range c.Prompts {
		if v != "" {
			out.Prompts[k] = v
		}
	}

	out.Models = make(map[string]int, len(d.Models)+len(c.Models))
	for k, v := range d.Models {
		out.Models[k] = v
	}
	for k, v := range c.Models {
		out.Models[k] = v
	}

	if out.Schema == "" {
		out.Schema = d.Schema
	}
	return out
}
