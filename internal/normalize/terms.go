package normalize

import (
	"regexp"
	"sort"
)

// abbreviationExpansion maps one domain abbreviation to its expansion.
type abbreviationExpansion struct {
	Abbr      string
	Expansion string
}

// Abbreviations maps EMS shorthand to full clinical terms. Expansion is
// word-boundary, case-insensitive, longest-abbreviation-first so that
// overlapping entries ("vfib" vs "vf") never partially match.
var Abbreviations = []abbreviationExpansion{
	// Medications
	{"epi", "epinephrine"},
	{"ntg", "nitroglycerin"},
	{"nitro", "nitroglycerin"},
	{"asa", "aspirin"},
	{"mgso4", "magnesium sulfate"},
	{"d50", "dextrose 50%"},
	{"d25", "dextrose 25%"},
	{"d10", "dextrose 10%"},
	{"bicarb", "sodium bicarbonate"},
	{"amio", "amiodarone"},

	// Routes
	{"iv", "intravenous"},
	{"im", "intramuscular"},
	{"io", "intraosseous"},
	{"sl", "sublingual"},
	{"neb", "nebulized"},
	{"po", "oral"},

	// Conditions and findings
	{"sob", "shortness of breath"},
	{"cp", "chest pain"},
	{"loc", "level of consciousness"},
	{"ams", "altered mental status"},
	{"mi", "myocardial infarction"},
	{"stemi", "st elevation myocardial infarction"},
	{"chf", "congestive heart failure"},
	{"copd", "chronic obstructive pulmonary disease"},
	{"svt", "supraventricular tachycardia"},
	{"vfib", "ventricular fibrillation"},
	{"vf", "ventricular fibrillation"},
	{"vtach", "ventricular tachycardia"},
	{"vt", "ventricular tachycardia"},
	{"afib", "atrial fibrillation"},
	{"dka", "diabetic ketoacidosis"},
	{"tbi", "traumatic brain injury"},
	{"cva", "stroke"},
	{"gsw", "gunshot wound"},
	{"mvc", "motor vehicle collision"},

	// Care context
	{"peds", "pediatric"},
	{"ped", "pediatric"},
	{"ob", "obstetric"},
	{"cpr", "cardiopulmonary resuscitation"},
	{"rosc", "return of spontaneous circulation"},
	{"bvm", "bag valve mask"},
	{"ett", "endotracheal tube"},
	{"rsi", "rapid sequence intubation"},
	{"als", "advanced life support"},
	{"bls", "basic life support"},
}

// TypoCorrections maps high-frequency misspellings of domain terms to their
// correct form. Applied whole-word, case-insensitive, after abbreviation
// expansion.
var TypoCorrections = map[string]string{
	"epinephrin":   "epinephrine",
	"epinepherine": "epinephrine",
	"anaphalaxis":  "anaphylaxis",
	"anaphylaxsis": "anaphylaxis",
	"anafilaxis":   "anaphylaxis",
	"benadril":     "benadryl",
	"amioderone":   "amiodarone",
	"amiodorone":   "amiodarone",
	"asprin":       "aspirin",
	"narcam":       "narcan",
	"seziure":      "seizure",
	"siezure":      "seizure",
	"tachicardia":  "tachycardia",
	"bradicardia":  "bradycardia",
	"defibrilation": "defibrillation",
	"nitroglycerine": "nitroglycerin",
	"albuteral":    "albuterol",
	"versad":       "versed",
}

// MedicationTerms are drug names recognized during term extraction.
var MedicationTerms = []string{
	"adenosine",
	"albuterol",
	"amiodarone",
	"aspirin",
	"atropine",
	"benadryl",
	"calcium chloride",
	"dextrose",
	"diphenhydramine",
	"dopamine",
	"epinephrine",
	"fentanyl",
	"glucagon",
	"ipratropium",
	"ketamine",
	"lidocaine",
	"magnesium sulfate",
	"midazolam",
	"morphine",
	"naloxone",
	"narcan",
	"nitroglycerin",
	"ondansetron",
	"sodium bicarbonate",
	"versed",
	"zofran",
}

// ConditionTerms are condition and presentation names recognized during
// term extraction.
var ConditionTerms = []string{
	"anaphylaxis",
	"asthma",
	"bradycardia",
	"burns",
	"cardiac arrest",
	"chest pain",
	"croup",
	"diabetic ketoacidosis",
	"hypoglycemia",
	"hypotension",
	"hypothermia",
	"myocardial infarction",
	"overdose",
	"respiratory distress",
	"seizure",
	"sepsis",
	"shock",
	"shortness of breath",
	"stroke",
	"supraventricular tachycardia",
	"tachycardia",
	"trauma",
	"ventricular fibrillation",
	"ventricular tachycardia",
}

// contraindicationVocab signals contraindication intent.
var contraindicationVocab = []string{
	"contraindicated",
	"contraindication",
	"contraindications",
	"allergy",
	"allergic",
	"avoid",
	"do not give",
	"should not",
	"when not to",
	"cannot give",
	"hold",
	"withhold",
}

// procedureVocab signals procedure-steps intent.
var procedureVocab = []string{
	"steps",
	"procedure",
	"how to",
	"how do i",
	"sequence",
	"order of",
	"checklist",
	"technique",
	"perform",
}

// pediatricVocab marks pediatric-age indicators for complexity scoring.
var pediatricVocab = []string{
	"pediatric",
	"child",
	"children",
	"infant",
	"neonate",
	"newborn",
	"toddler",
}

var (
	// dosagePattern matches numeric dosage expressions like "0.3 mg",
	// "1mg/kg", "5 mcg/kg/min".
	dosagePattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml|meq|units?|mg/kg|mcg/kg|mcg/kg/min|ml/kg|j|joules)\b`)

	// agePattern matches explicit age expressions like "5 year old" or
	// "18 month old".
	agePattern = regexp.MustCompile(`\b\d{1,2}\s*(?:year|yr|month|mo)s?[- ]old\b`)

	// protocolIDPattern matches a bare protocol identifier token: two to
	// four digits, optionally prefixed by one or two letters and a hyphen
	// (e.g. "502", "M-12", "TR-104").
	protocolIDPattern = regexp.MustCompile(`^(?:[A-Za-z]{1,2}-)?\d{2,4}$`)

	// unitSuffixPattern excludes dosage numbers from identifier detection
	// when the following token is a unit.
	unitSuffixPattern = regexp.MustCompile(`^(?:mg|mcg|g|ml|meq|units?|j|joules|kg|lb|min|minutes?|years?|yr|months?|mo)$`)

	abbreviationPatterns []abbreviationPattern
)

type abbreviationPattern struct {
	re        *regexp.Regexp
	expansion string
}

func init() {
	// Longest abbreviation first so "vfib" wins over "vf".
	sorted := make([]abbreviationExpansion, len(Abbreviations))
	copy(sorted, Abbreviations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Abbr) > len(sorted[j].Abbr)
	})

	abbreviationPatterns = make([]abbreviationPattern, len(sorted))
	for i, a := range sorted {
		abbreviationPatterns[i] = abbreviationPattern{
			re:        regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(a.Abbr) + `\b`),
			expansion: a.Expansion,
		}
	}
}
