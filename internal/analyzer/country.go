package analyzer

import "strings"

// countryNames maps lowercase country names to ISO 3166-1 alpha-2 codes.
// Only names that commonly show up in screening queries are listed; values
// that are already two-letter codes pass through untouched.
var countryNames = map[string]string{
	"russia": "ru", "russian federation": "ru",
	"united states": "us", "united states of america": "us", "usa": "us",
	"united kingdom": "gb", "great britain": "gb", "uk": "gb",
	"china": "cn", "people's republic of china": "cn",
	"germany": "de", "france": "fr", "italy": "it", "spain": "es",
	"netherlands": "nl", "belgium": "be", "switzerland": "ch",
	"austria": "at", "sweden": "se", "norway": "no", "denmark": "dk",
	"finland": "fi", "poland": "pl", "ukraine": "ua", "belarus": "by",
	"kazakhstan": "kz", "uzbekistan": "uz", "turkmenistan": "tm",
	"georgia": "ge", "armenia": "am", "azerbaijan": "az", "moldova": "md",
	"turkey": "tr", "türkiye": "tr",
	"iran": "ir", "islamic republic of iran": "ir",
	"iraq": "iq", "syria": "sy", "syrian arab republic": "sy",
	"north korea": "kp", "dprk": "kp",
	"democratic people's republic of korea": "kp",
	"south korea": "kr", "republic of korea": "kr",
	"japan": "jp", "india": "in", "pakistan": "pk", "afghanistan": "af",
	"saudi arabia": "sa", "united arab emirates": "ae", "uae": "ae",
	"qatar": "qa", "kuwait": "kw", "bahrain": "bh", "oman": "om",
	"israel": "il", "lebanon": "lb", "jordan": "jo", "egypt": "eg",
	"libya": "ly", "sudan": "sd", "south sudan": "ss", "yemen": "ye",
	"somalia": "so", "eritrea": "er", "ethiopia": "et",
	"nigeria": "ng", "south africa": "za", "zimbabwe": "zw",
	"venezuela": "ve", "cuba": "cu", "nicaragua": "ni",
	"brazil": "br", "mexico": "mx", "argentina": "ar", "colombia": "co",
	"canada": "ca", "australia": "au", "new zealand": "nz",
	"ireland": "ie", "portugal": "pt", "greece": "gr", "cyprus": "cy",
	"malta": "mt", "luxembourg": "lu", "liechtenstein": "li", "monaco": "mc",
	"hungary": "hu", "czech republic": "cz", "czechia": "cz",
	"slovakia": "sk", "romania": "ro", "bulgaria": "bg", "serbia": "rs",
	"croatia": "hr", "slovenia": "si", "bosnia and herzegovina": "ba",
	"albania": "al", "north macedonia": "mk", "montenegro": "me",
	"kosovo": "xk",
	"myanmar": "mm", "burma": "mm", "thailand": "th", "vietnam": "vn",
	"cambodia": "kh", "laos": "la", "malaysia": "my", "singapore": "sg",
	"indonesia": "id", "philippines": "ph", "hong kong": "hk", "taiwan": "tw",
	"panama": "pa", "british virgin islands": "vg", "cayman islands": "ky",
	"seychelles": "sc", "marshall islands": "mh", "belize": "bz",
}

// NormalizeCountry maps a country value to its ISO alpha-2 code. Two-letter
// inputs are lowercased and trusted; unknown names are returned normalized
// but untranslated.
func NormalizeCountry(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if len(v) == 2 {
		return v
	}
	if code, ok := countryNames[v]; ok {
		return code
	}
	return v
}
