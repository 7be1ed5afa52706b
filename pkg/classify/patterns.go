package classify

import "regexp"

// Pattern tables are compiled once at init. A set's score is the
// number of its patterns that match, not the total occurrence count,
// so repeating one keyword cannot push a query over a threshold alone.

var greetingPatterns = compile(
	`\b(hi|hiya|hello|hey|yo|howdy|greetings)\b`,
	`\bgood (morning|afternoon|evening|night)\b`,
	`\bwhat'?s up\b`,
	`\bhow are you\b`,
	`\b(thanks|thank you|thx)\b`,
	`\b(bye|goodbye|see you|later)\b`,
)

var codePatterns = compile(
	`\b(code|coding|program|script|function|method|class|module)\b`,
	`\b(python|golang|javascript|typescript|java|rust|c\+\+|sql|bash|shell)\b`,
	`\b(debug|debugging|bug|stack trace|traceback|exception|compile|compiler)\b`,
	`\b(implement|refactor|optimi[sz]e) \w+`,
	`\b(api|endpoint|regex|algorithm|data structure)\b`,
	`\b(unit test|test case|linter)\b`,
	"```",
)

var mathPatterns = compile(
	`\b(calculate|compute|solve|evaluate the)\b`,
	`\b(equation|integral|derivative|matrix|vector|theorem|proof)\b`,
	`\b(algebra|geometry|calculus|probability|statistics|arithmetic)\b`,
	`\b(sum|product|average|mean|median|percentage|percent) of\b`,
	`[0-9]+\s*[+\-*/^=]\s*[0-9]+`,
	`\bsquare root\b`,
)

var analysisPatterns = compile(
	`\b(analy[sz]e|analysis|assess|evaluate|examine|investigate)\b`,
	`\b(compare|comparison|contrast|versus|vs\.?)\b`,
	`\b(pros and cons|trade-?offs|strengths and weaknesses)\b`,
	`\b(implications|impact|root cause|breakdown)\b`,
	`\b(review|critique|audit)\b`,
	`\bsummari[sz]e the (findings|results|data)\b`,
)

var creativePatterns = compile(
	`\bwrite (me )?(a|an|some) (story|stories|poem|poems|song|essay|novel|haiku|lyrics|screenplay|script for)\b`,
	`\b(imagine|invent|brainstorm|fictional|fantasy)\b`,
	`\b(creative|creatively)\b`,
	`\b(character|plot|setting|dialogue) (for|of|in)\b`,
	`\bonce upon a time\b`,
	`\b(compose|draft) (a|an)\b`,
)

var toolPatterns = compile(
	`\b(search|browse|look up|google) (the )?(web|internet|online)\b`,
	`\b(fetch|download|open|visit) (the |this )?(url|link|page|website)\b`,
	`\b(run|execute) (a |the |this )?(command|script|tool|program)\b`,
	`\b(read|write|open|create|delete|list) (a |the |this |my )?(file|files|directory|folder)\b`,
	`\b(call|invoke|use) (a |the |this )?(api|tool|function)\b`,
	`\bcurrent (time|date|weather)\b`,
)

// questionPattern recognizes interrogative openers; a trailing "?" is
// checked separately since it survives lowercasing untouched.
var questionPattern = regexp.MustCompile(
	`^(who|what|when|where|why|how|which|whose|can|could|would|should|is|are|was|were|do|does|did|will)\b`)

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

func matchCount(patterns []*regexp.Regexp, s string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(s) {
			n++
		}
	}
	return n
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
