package analyzer

import "strings"

// Symbol categories.
const (
	CatOrgClass = "ORGCLS"
	CatSymbol   = "SYMBOL"
	CatName     = "NAME"
	CatInitial  = "INITIAL"
)

// Symbol is a semantic equivalence class attached to a name: a legal form,
// a known synonym token, or a known-name dictionary hit.
type Symbol struct {
	Category string
	Value    string
}

// String renders the symbol in its indexed form, e.g. "ORGCLS:LLC".
func (s Symbol) String() string {
	return s.Category + ":" + s.Value
}

// Indexable reports whether the symbol is written to the index. INITIAL
// symbols are computed for scoring but never indexed.
func (s Symbol) Indexable() bool {
	return s.Category != CatInitial
}

// orgClasses maps lowercase legal-form tokens to their canonical class.
var orgClasses = map[string]string{
	"llc": "LLC", "ooo": "LLC", "ооо": "LLC", "ltd": "LLC", "limited": "LLC",
	"llp": "LLP",
	"gmbh": "GMBH", "mbh": "GMBH",
	"ag": "AG",
	"sa": "SA", "s.a": "SA",
	"ao": "JSC", "ао": "JSC", "oao": "JSC", "оао": "JSC", "zao": "JSC",
	"зао": "JSC", "jsc": "JSC", "pjsc": "JSC", "pao": "JSC", "пао": "JSC",
	"inc": "INC", "incorporated": "INC", "corp": "INC", "corporation": "INC",
	"plc": "PLC",
	"sarl": "SARL", "s.a.r.l": "SARL",
	"bv": "BV", "b.v": "BV", "nv": "NV", "n.v": "NV",
	"spa": "SPA", "s.p.a": "SPA",
	"oy": "OY", "ab": "AB", "as": "AS",
	"kk": "KK", "k.k": "KK",
	"fzco": "FZCO", "fze": "FZE",
}

// symbolWords maps lowercase tokens to a cross-language equivalence class.
var symbolWords = map[string]string{
	"bank": "BANK", "banka": "BANK", "banca": "BANK", "banque": "BANK",
	"банк": "BANK", "banco": "BANK",
	"group": "GROUP", "gruppa": "GROUP", "группа": "GROUP", "grupo": "GROUP",
	"holding": "HOLDING", "holdings": "HOLDING", "холдинг": "HOLDING",
	"trade": "TRADE", "trading": "TRADE", "торговый": "TRADE",
	"industries": "INDUSTRY", "industrial": "INDUSTRY", "industry": "INDUSTRY",
	"international": "INTL", "global": "INTL",
	"investment": "INVEST", "investments": "INVEST", "invest": "INVEST",
	"insurance": "INSUR", "assurance": "INSUR",
	"petroleum": "OIL", "oil": "OIL", "нефть": "OIL",
	"energy": "ENERGY", "энерго": "ENERGY",
	"shipping": "SHIP", "maritime": "SHIP",
	"airlines": "AIR", "airways": "AIR", "aviation": "AIR",
	"technology": "TECH", "technologies": "TECH", "tech": "TECH",
	"company": "COMPANY", "co": "COMPANY", "компания": "COMPANY",
	"state": "STATE", "national": "STATE", "государственный": "STATE",
}

// knownNames maps normalized given-name variants to a stable dictionary id.
// Hits emit NAME:<id> symbols so transliterated spellings of the same name
// generate the same index term.
var knownNames = map[string]string{
	"vladimir": "105", "wladimir": "105", "uladzimir": "105", "владимир": "105",
	"aleksandr": "112", "alexander": "112", "alexandre": "112", "александр": "112",
	"sergei": "118", "sergey": "118", "serguei": "118", "сергей": "118",
	"mikhail": "123", "michail": "123", "michael": "123", "михаил": "123",
	"dmitri": "127", "dmitry": "127", "dmitriy": "127", "дмитрий": "127",
	"nikolai": "131", "nikolay": "131", "николай": "131",
	"yevgeni": "137", "evgeny": "137", "yevgeny": "137", "евгений": "137",
	"mohammed": "140", "muhammad": "140", "mohammad": "140", "mohamed": "140",
	"ali": "143", "али": "143",
	"ibrahim": "146", "ebrahim": "146", "ابراهيم": "146",
	"igor": "151", "игорь": "151",
	"viktor": "154", "victor": "154", "виктор": "154",
	"andrei": "158", "andrey": "158", "андрей": "158",
	"natalia": "162", "natalya": "162", "наталья": "162",
	"elena": "166", "yelena": "166", "елена": "166",
}

// orgClassOf returns the canonical org class for a token, or "".
func orgClassOf(token string) string {
	return orgClasses[strings.TrimRight(token, ".")]
}

// symbolize computes the symbols for the tokens of a name.
func symbolize(tokens []string, isOrg bool) []Symbol {
	var out []Symbol
	seen := map[string]bool{}
	add := func(s Symbol) {
		key := s.String()
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	for _, tok := range tokens {
		tok = strings.TrimRight(tok, ".")
		if isOrg {
			if cls := orgClassOf(tok); cls != "" {
				add(Symbol{Category: CatOrgClass, Value: cls})
				continue
			}
		}
		if sym, ok := symbolWords[tok]; ok {
			add(Symbol{Category: CatSymbol, Value: sym})
		}
		if id, ok := knownNames[tok]; ok {
			add(Symbol{Category: CatName, Value: id})
		}
		if isSingleLetter(tok) {
			add(Symbol{Category: CatInitial, Value: strings.ToUpper(tok)})
		}
	}
	return out
}
