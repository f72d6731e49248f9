package internal

// Text is a multilingual literal keyed by language code.
// The source catalogue publishes de, en, fr, it and rm variants;
// absent languages are simply missing keys.
type Text map[string]string

// preferred lookup order when a single representative value is needed.
var preferredLanguages = []string{"de", "en", "fr", "it", "rm"}

// First returns the first non-empty value in preferred language order.
func (t Text) First() string {
	for _, lang := range preferredLanguages {
		if v := t[lang]; v != "" {
			return v
		}
	}
	for _, v := range t {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsEmpty reports whether no language carries a non-empty value.
func (t Text) IsEmpty() bool {
	return t.First() == ""
}
