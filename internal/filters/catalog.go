package filters

// Kind describes how a raw form value becomes a payload value.
type Kind string

// Field kinds understood by Assemble.
const (
	KindText    Kind = "text"
	KindInt     Kind = "int"
	KindDecimal Kind = "decimal"
	KindChoice  Kind = "choice"
	KindLines   Kind = "lines"
	KindSet     Kind = "set"
)

// Field is one entry of the filter catalog.
type Field struct {
	Key     string
	Kind    Kind
	Label   string
	Options []string
}

// Well-known keys that get special treatment.
const (
	KeyLinks      = "links"
	KeyCategories = "categories"
)

var catalog = []Field{
	{Key: KeyCategories, Kind: KindSet, Label: "Channel categories"},
	{Key: KeyLinks, Kind: KindLines, Label: "Channel links, one per line"},
	{Key: "channel_name", Kind: KindText, Label: "Channel name"},
	{Key: "description", Kind: KindText, Label: "Channel description"},
	{Key: "participants_from", Kind: KindInt, Label: "Minimum subscribers"},
	{Key: "participants_to", Kind: KindInt, Label: "Maximum subscribers"},
	{Key: "views_post_from", Kind: KindInt, Label: "Minimum views per post"},
	{Key: "views_post_to", Kind: KindInt, Label: "Maximum views per post"},
	{Key: "mentions_week_from", Kind: KindInt, Label: "Minimum mentions per week"},
	{Key: "mentions_week_to", Kind: KindInt, Label: "Maximum mentions per week"},
	{Key: "er_from", Kind: KindDecimal, Label: "Minimum ER, percent"},
	{Key: "er_to", Kind: KindDecimal, Label: "Maximum ER, percent"},
	{Key: "channel_type", Kind: KindChoice, Label: "Channel type", Options: []string{"opened", "closed"}},
	{Key: "verified", Kind: KindChoice, Label: "Verified", Options: []string{"yes", "no"}},
	{Key: "lang_code", Kind: KindChoice, Label: "Language code"},
	{Key: "has_stats", Kind: KindChoice, Label: "Detailed stats", Options: []string{"es"}},
	{Key: "male_from", Kind: KindInt, Label: "Minimum male audience, percent"},
	{Key: "female_from", Kind: KindInt, Label: "Minimum female audience, percent"},
	{Key: "start_page", Kind: KindInt, Label: "First result page"},
	{Key: "end_page", Kind: KindInt, Label: "Last result page"},
}

var byKey = func() map[string]Field {
	m := make(map[string]Field, len(catalog))
	for _, f := range catalog {
		m[f.Key] = f
	}
	return m
}()

// Catalog returns the known filter fields in display order.
func Catalog() []Field {
	out := make([]Field, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the catalog entry for key.
func Lookup(key string) (Field, bool) {
	f, ok := byKey[key]
	return f, ok
}
