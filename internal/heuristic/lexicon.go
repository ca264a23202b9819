package heuristic

// Term lexicons for the baseline scorer. Terms are matched lowercase against
// the normalized title+body text. Keep terms lowercase and avoid making one
// term a substring of another in the same lexicon, or occurrence counts
// double up.

// hypeTerms are marketing superlatives that inflate the hype score.
var hypeTerms = []string{
	"revolutionary",
	"breakthrough",
	"unprecedented",
	"game-changing",
	"game changer",
	"disruptive",
	"amazing",
	"incredible",
	"groundbreaking",
	"world-first",
	"cutting-edge",
	"next-generation",
	"visionary",
	"magical",
	"mind-blowing",
	"paradigm shift",
	"best-in-class",
	"seamlessly",
	"effortlessly",
	"limitless",
}

// technicalTerms are neutral engineering vocabulary that deflates hype.
var technicalTerms = []string{
	"version",
	"algorithm",
	"module",
	"benchmark",
	"protocol",
	"implementation",
	"dataset",
	"latency",
	"changelog",
	"regression",
	"refactor",
	"deprecated",
	"documentation",
	"open source",
	"peer-reviewed",
}

// privacyTerms raise the ethics score per occurrence and trigger the
// privacy impact tag.
var privacyTerms = []string{
	"privacy",
	"encryption",
	"encrypted",
	"consent",
	"audit",
	"gdpr",
	"anonymized",
	"data protection",
	"opt-out",
	"opt-in",
	"transparency report",
}

// laborTerms apply a flat ethics penalty and trigger the labor impact tag.
var laborTerms = []string{
	"replaces",
	"replacing workers",
	"layoff",
	"layoffs",
	"automation",
	"automating jobs",
	"job cuts",
	"displaced workers",
	"redundancies",
	"union busting",
	"gig workers",
}

// environmentTerms apply a flat ethics bonus and trigger the environment tag.
var environmentTerms = []string{
	"carbon neutral",
	"carbon footprint",
	"renewable",
	"sustainable",
	"sustainability",
	"emissions",
	"recycled",
	"recyclable",
	"solar",
	"energy efficient",
	"e-waste",
}

// safetyTerms trigger the safety impact tag only; they do not move scores.
var safetyTerms = []string{
	"recall",
	"recalled",
	"hazard",
	"unsafe",
	"injury",
	"injuries",
	"fatal",
	"crash",
	"malfunction",
	"vulnerability",
	"exploit",
	"data breach",
}
