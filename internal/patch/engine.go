package patch

// Skipped records an intent that could not be applied
type Skipped struct {
	Intent Intent
	Err    error
}

// Report summarizes one Apply call
type Report struct {
	Applied []string
	// Intents holds the applied intents, parallel to Applied
	Intents []Intent
	Skipped []Skipped
}

// Modified reports whether at least one intent changed the document
func (r Report) Modified() bool {
	return len(r.Applied) > 0
}

// Apply applies intents in order and returns the resulting document.
// The input document is not modified. An intent whose slot or key is missing
// is skipped and recorded in the report; later intents still run.
func Apply(doc *Document, intents []Intent) (*Document, Report) {
	var report Report
	for _, intent := range intents {
		if intent == nil {
			continue
		}
		out, summary, err := intent.apply(doc)
		if err != nil {
			report.Skipped = append(report.Skipped, Skipped{Intent: intent, Err: err})
			continue
		}
		doc = out
		report.Applied = append(report.Applied, summary)
		report.Intents = append(report.Intents, intent)
	}
	return doc, report
}

// ApplyText parses text, applies intents and renders the result
func ApplyText(text string, intents ...Intent) (string, Report) {
	doc, report := Apply(Parse(text), intents)
	return doc.String(), report
}
