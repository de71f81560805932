package sanitize

// Result is the outcome of validating one utterance.
type Result struct {
	OK      bool
	Reason  string // user-facing rejection message when !OK
	Cleaned string
}

// Reasons returned by the default rule chain.
const (
	ReasonGibberish = "Gibberish detected."
	ReasonUnclear   = "Please speak clearly."
)

// Rule is a single named validation check. It receives the cleaned text
// and its word split, and returns a rejection reason or "" to pass.
type Rule struct {
	Name  string
	Check func(cleaned string, words []string) string
}

// DefaultRules is the ordered rule chain applied by Validate. First
// failing rule wins. The chain runs on cleaned text only, before any
// outbound network call.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "gibberish",
			Check: func(cleaned string, words []string) string {
				compact := ""
				for _, w := range words {
					compact += w
				}
				if isRepeatedToken(compact) {
					return ReasonGibberish
				}
				return ""
			},
		},
		{
			Name: "min-words",
			Check: func(cleaned string, words []string) string {
				if len(words) < 3 {
					return ReasonUnclear
				}
				return ""
			},
		},
		{
			Name: "meaningful-content",
			Check: func(cleaned string, words []string) string {
				for _, w := range words {
					if len(w) > 3 {
						return ""
					}
				}
				if len(words) < 5 {
					return ReasonUnclear
				}
				return ""
			},
		},
	}
}

// Validator applies a rule chain to raw transcripts.
type Validator struct {
	rules []Rule
}

// NewValidator builds a validator. A nil rules slice uses DefaultRules.
func NewValidator(rules []Rule) *Validator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Validator{rules: rules}
}

// Validate cleans raw and runs the rule chain in order.
func (v *Validator) Validate(raw string) Result {
	cleaned := Clean(raw)
	words := Words(cleaned)

	for _, r := range v.rules {
		if reason := r.Check(cleaned, words); reason != "" {
			return Result{OK: false, Reason: reason, Cleaned: cleaned}
		}
	}
	return Result{OK: true, Cleaned: cleaned}
}

// isRepeatedToken reports whether s consists of a single token repeated
// three or more times ("hahahaha", "nonono"). RE2 has no backreferences,
// so this checks every prefix length that divides the string into at
// least three equal chunks.
func isRepeatedToken(s string) bool {
	n := len(s)
	if n < 3 {
		return false
	}
	for size := 1; size <= n/3; size++ {
		if n%size != 0 {
			continue
		}
		unit := s[:size]
		match := true
		for i := size; i < n; i += size {
			if s[i:i+size] != unit {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
