package loam

// GraphMetadata is the front-matter (or JSON/YAML body) of a graph document.
// It is kept as a loose map and decoded by the compiler, so Markdown, YAML and
// JSON documents share one definition format.
type GraphMetadata map[string]any
