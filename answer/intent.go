package answer

import (
	"fmt"
	"strings"

	"github.com/poiesic/askit/core"
)

// Intent identifies which kind of answer a question asks for.
type Intent int

const (
	IntentNone Intent = iota
	IntentComprehensive
	IntentExplanation
	IntentDescription
	IntentEducation
	IntentCareer
	IntentRole
	IntentContribution
	IntentFallback
)

var intentNames = map[Intent]string{
	IntentNone:          "none",
	IntentComprehensive: "comprehensive",
	IntentExplanation:   "explanation",
	IntentDescription:   "description",
	IntentEducation:     "education",
	IntentCareer:        "career",
	IntentRole:          "role",
	IntentContribution:  "contribution",
	IntentFallback:      "fallback",
}

func (i Intent) String() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Intent(%d)", int(i))
}

// Keyword lists are matched as substrings of the lowercased question.
var (
	comprehensiveKeywords = []string{"everything", "full info", "tell me about", "details", "all about", "who is"}
	educationKeywords     = []string{"stud", "educat", "college", "university", "degree", "school", "graduat"}
	careerKeywords        = []string{"work", "career", "join", "position", "compan", "history"}
	roleKeywords          = []string{"role", "job", "title", "ceo", "founder", "position", "do"}
	contributionKeywords  = []string{"known for", "did", "contribution", "invent", "create", "make", "built"}
)

// rule pairs an intent with its trigger and the text it produces.
// The first rule whose matches returns true decides the answer.
type rule struct {
	intent  Intent
	matches func(question string, md core.Metadata) bool
	extract func(md core.Metadata) string
}

var rules = []rule{
	{
		intent: IntentComprehensive,
		matches: func(q string, _ core.Metadata) bool {
			return containsAny(q, comprehensiveKeywords)
		},
		extract: comprehensive,
	},
	{
		intent: IntentExplanation,
		matches: func(_ string, md core.Metadata) bool {
			return md.Has("explanation")
		},
		extract: func(md core.Metadata) string { return md.Text("explanation") },
	},
	{
		intent: IntentDescription,
		matches: func(_ string, md core.Metadata) bool {
			return md.Has("description")
		},
		extract: func(md core.Metadata) string { return md.Text("description") },
	},
	{
		intent: IntentEducation,
		matches: func(q string, md core.Metadata) bool {
			return containsAny(q, educationKeywords) && md.Truthy("education")
		},
		extract: func(md core.Metadata) string {
			return fmt.Sprintf("%s studied at %s.", entityName(md), md.Text("education"))
		},
	},
	{
		intent: IntentCareer,
		matches: func(q string, md core.Metadata) bool {
			return containsAny(q, careerKeywords) && md.Truthy("career")
		},
		extract: func(md core.Metadata) string { return md.Text("career") },
	},
	{
		intent: IntentRole,
		matches: func(q string, md core.Metadata) bool {
			return containsAny(q, roleKeywords) && md.Truthy("role")
		},
		extract: func(md core.Metadata) string {
			return fmt.Sprintf("%s is the %s of %s.", entityName(md), md.Text("role"), md.Text("company"))
		},
	},
	{
		intent: IntentContribution,
		matches: func(q string, md core.Metadata) bool {
			return containsAny(q, contributionKeywords) && md.Truthy("contribution")
		},
		extract: func(md core.Metadata) string {
			return fmt.Sprintf("%s is known for: %s.", entityName(md), md.Text("contribution"))
		},
	},
	{
		intent: IntentFallback,
		matches: func(_ string, _ core.Metadata) bool {
			return true
		},
		extract: func(md core.Metadata) string {
			return md.First("summary", "explanation", "description", "content")
		},
	},
}

// Classify reports which intent answers question for a record with metadata md.
func Classify(question string, md core.Metadata) Intent {
	r, _ := match(strings.ToLower(question), md)
	return r.intent
}

func match(lowered string, md core.Metadata) (rule, bool) {
	for _, r := range rules {
		if r.matches(lowered, md) {
			return r, true
		}
	}
	return rule{intent: IntentNone}, false
}

// comprehensive gathers every descriptive field into blank-line separated paragraphs.
func comprehensive(md core.Metadata) string {
	var parts []string
	if summary := md.First("summary", "explanation", "description"); summary != "" {
		parts = append(parts, summary)
	}
	if md.Has("education") {
		parts = append(parts, "Education: "+md.Text("education"))
	}
	if md.Has("career") {
		parts = append(parts, "Career: "+md.Text("career"))
	}
	if md.Has("contribution") {
		parts = append(parts, "Contribution: "+md.Text("contribution"))
	}
	if md.Has("role") {
		parts = append(parts, fmt.Sprintf("Role: %s at %s", md.Text("role"), md.Text("company")))
	}
	return strings.Join(parts, "\n\n")
}

// entityName is the record's name, or a generic subject when it has none.
func entityName(md core.Metadata) string {
	if !md.Has("name") {
		return "This entity"
	}
	return md.Text("name")
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
