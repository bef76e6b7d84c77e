package search

import "github.com/fyrsmithlabs/ideabank/internal/item"

// Seed queries per item type. Each is a semantically distinct probe
// into the conversation index; together they cover the angles a single
// query would miss.
var seedsByType = map[item.Type][]string{
	item.TypeIdea: {
		"feature ideas and proposals discussed",
		"things the user wished the tool could do",
		"improvements and enhancements suggested",
		"new project or product concepts",
		"automation opportunities mentioned",
	},
	item.TypeInsight: {
		"notable decisions and their reasoning",
		"recurring pain points and frustrations",
		"lessons learned from debugging sessions",
		"tradeoffs weighed between approaches",
		"mistakes and what they revealed",
	},
	item.TypeUseCase: {
		"workflows the user performs repeatedly",
		"tasks delegated to the assistant",
		"problems solved with code generation",
		"integrations and tooling set up",
		"questions asked more than once",
	},
}

// SeedsFor returns the seed query strings for an item type. Unknown
// types get nil.
func SeedsFor(typ item.Type) []string {
	return seedsByType[typ]
}
