package category

import (
	"regexp"
	"sort"
	"strings"

	"nichescout/models"
)

// OtherCategory buckets records no product type matched. It ranks last and
// is never expanded.
const OtherCategory = "Other"

// stopwords are tokens that never name a product type: grammar words,
// quantities, sizes, colours, marketing filler, audience words.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the a an and or but in on at to for of with by from as is was are were
		been be have has had do does did will would could should may might must
		shall can need
		it its this that these those i you he she we they what which who whom
		where when why how all each every both few more most other some such no
		nor not only own same so than too very just also now new used
		one two three four five six seven eight nine ten
		pack pcs piece pieces set sets pair pairs person people man seat seats
		count qty
		size large small medium xl xxl xs l m s inch inches ft feet cm mm lb
		lbs oz kg g gallon quart liter litre ml
		black white red blue green yellow pink purple gray grey brown orange
		silver gold beige navy color colors multi multicolor
		amazon brand best top premium quality pro deluxe ultra super extra plus
		max mini lite official original genuine authentic upgraded improved
		men women kids adult adults boy girl baby boys girls babies children
		child toddler teen mens womens unisex family
		portable foldable folding adjustable waterproof lightweight heavy duty
		durable sturdy strong soft hard thick thin wide narrow long short
		indoor outdoor home office travel car garden`) {
		stopwords[w] = struct{}{}
	}
}

var nonAlpha = regexp.MustCompile(`[^a-zA-Z\s]`)

func tokens(text string) []string {
	return strings.Fields(nonAlpha.ReplaceAllString(strings.ToLower(text), " "))
}

func ngrams(words []string, n int) []string {
	if len(words) < n {
		return nil
	}
	out := make([]string, 0, len(words)-n+1)
	for i := 0; i+n <= len(words); i++ {
		out = append(out, strings.Join(words[i:i+n], " "))
	}
	return out
}

// ExtractProductTypes mines frequent word groups from record names as
// candidate product types. The search keyword's own words are treated as
// stopwords so it cannot dominate its own taxonomy. Longer phrases win over
// their substrings.
func ExtractProductTypes(records []*models.ProductRecord, keyword string, minCount, topN int) []string {
	banned := make(map[string]struct{}, len(stopwords)+4)
	for w := range stopwords {
		banned[w] = struct{}{}
	}
	for _, w := range tokens(keyword) {
		banned[w] = struct{}{}
	}

	type entry struct {
		gram  string
		count int
		order int
	}
	counts := make(map[string]*entry)
	order := 0

	for _, r := range records {
		words := tokens(r.Name)
		for n := 1; n <= 3; n++ {
			for _, gram := range ngrams(words, n) {
				if n == 1 {
					if _, ok := banned[gram]; ok {
						continue
					}
					if len(gram) < 3 {
						continue
					}
				} else {
					allBanned := true
					for _, w := range strings.Split(gram, " ") {
						if _, ok := banned[w]; !ok {
							allBanned = false
							break
						}
					}
					if allBanned {
						continue
					}
				}
				e, ok := counts[gram]
				if !ok {
					e = &entry{gram: gram, order: order}
					order++
					counts[gram] = e
				}
				e.count++
			}
		}
	}

	valid := make([]*entry, 0, len(counts))
	for _, e := range counts {
		if e.count >= minCount {
			valid = append(valid, e)
		}
	}
	sort.Slice(valid, func(i, j int) bool {
		li, lj := strings.Count(valid[i].gram, " "), strings.Count(valid[j].gram, " ")
		if li != lj {
			return li > lj
		}
		if valid[i].count != valid[j].count {
			return valid[i].count > valid[j].count
		}
		return valid[i].order < valid[j].order
	})

	var result []string
	for _, e := range valid {
		subset := false
		for _, existing := range result {
			if e.gram != existing && strings.Contains(existing, e.gram) {
				subset = true
				break
			}
		}
		if !subset {
			result = append(result, e.gram)
		}
		if len(result) >= topN {
			break
		}
	}
	return result
}

// ApplyProviderCategories overwrites record categories with the leaf of
// each provider taxonomy path ("Sports & Outdoors > Camping & Hiking >
// Tents" assigns "Tents"). Provider taxonomy beats the mined fallback, so
// existing values are replaced. Returns how many records were labelled.
func ApplyProviderCategories(records []*models.ProductRecord, paths map[string]string) int {
	applied := 0
	for _, r := range records {
		leaf := pathLeaf(paths[r.ID])
		if leaf == "" {
			continue
		}
		c := leaf
		r.Category = &c
		applied++
	}
	return applied
}

func pathLeaf(path string) string {
	if path == "" {
		return ""
	}
	parts := strings.Split(path, ">")
	return strings.TrimSpace(parts[len(parts)-1])
}

// AssignCategories fills each record's category from the mined product
// types: first type found in the name wins, title-cased. Records that match
// nothing fall into the Other bucket. Existing categories are kept.
func AssignCategories(records []*models.ProductRecord, productTypes []string) {
	for _, r := range records {
		if r.Category != nil && *r.Category != "" {
			continue
		}
		name := strings.ToLower(r.Name)
		assigned := OtherCategory
		for _, pt := range productTypes {
			if strings.Contains(name, pt) {
				assigned = titleCase(pt)
				break
			}
		}
		c := assigned
		r.Category = &c
	}
}

// titleCase capitalises each word of an ASCII phrase.
func titleCase(phrase string) string {
	words := strings.Split(phrase, " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
