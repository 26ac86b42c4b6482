package profiler

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/profview/profview/internal/report"
)

const (
	maxCategories  = 25
	maxSamples     = 5
	quantilePoints = 999
)

// valueType is the inferred primitive type of a column.
type valueType string

const (
	typeInt      valueType = "int"
	typeFloat    valueType = "float"
	typeBool     valueType = "bool"
	typeDatetime valueType = "datetime"
	typeString   valueType = "string"
)

var nullSpellings = map[string]struct{}{
	"":     {},
	"nan":  {},
	"none": {},
	"null": {},
	"n/a":  {},
	"na":   {},
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
	"Jan 2, 2006",
}

// nullSpelling reports whether v counts as a null cell and, if so, its
// normalized spelling. Whitespace-only cells fold into "".
func nullSpelling(v string) (string, bool) {
	norm := strings.ToLower(strings.TrimSpace(v))
	if _, ok := nullSpellings[norm]; ok {
		return norm, true
	}
	return "", false
}

func isInt(v string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	return err == nil
}

func isFloat(v string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return err == nil
}

func isBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "false", "t", "f", "yes", "no":
		return true
	}
	return false
}

func isDatetime(v string) bool {
	v = strings.TrimSpace(v)
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

func detectType(v string) valueType {
	switch {
	case isInt(v):
		return typeInt
	case isFloat(v):
		return typeFloat
	case isBool(v):
		return typeBool
	case isDatetime(v):
		return typeDatetime
	}
	return typeString
}

// generalize widens a column type to cover one more value. Int and
// float merge to float; any other mismatch falls back to string.
func generalize(a, b valueType) valueType {
	switch {
	case a == "":
		return b
	case a == b:
		return a
	case (a == typeInt && b == typeFloat) || (a == typeFloat && b == typeInt):
		return typeFloat
	}
	return typeString
}

// quantileVector evaluates 999 evenly spaced quantiles of sorted, the
// raw vector the report binner later folds into named groups.
func quantileVector(sorted []float64) []float64 {
	n := len(sorted)
	if n == 0 {
		return nil
	}
	out := make([]float64, quantilePoints)
	for k := range out {
		idx := int(math.Ceil(float64(k+1)*float64(n)/float64(quantilePoints+1))) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		out[k] = sorted[idx]
	}
	return out
}

// histogram bins sorted values into equal-width buckets. bins <= 0
// selects the Sturges count for the vector length.
func histogram(sorted []float64, bins int) (counts, edges []float64) {
	n := len(sorted)
	if n == 0 {
		return nil, nil
	}
	if bins <= 0 {
		bins = int(math.Ceil(math.Log2(float64(n)))) + 1
	}
	lo, hi := sorted[0], sorted[n-1]
	if lo == hi {
		return []float64{float64(n)}, []float64{lo, hi}
	}
	width := (hi - lo) / float64(bins)
	counts = make([]float64, bins)
	edges = make([]float64, bins+1)
	for i := range edges {
		edges[i] = lo + width*float64(i)
	}
	edges[bins] = hi
	for _, v := range sorted {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	return counts, edges
}

// detectOrder classifies a column scan as ascending, descending,
// constant, or random. cmp compares positions i and j of the scan.
func detectOrder(n int, cmp func(i, j int) int) string {
	if n <= 1 {
		return "constant"
	}
	asc, desc, eq := true, true, true
	for i := 1; i < n; i++ {
		switch c := cmp(i-1, i); {
		case c < 0:
			desc, eq = false, false
		case c > 0:
			asc, eq = false, false
		}
	}
	switch {
	case eq:
		return "constant"
	case asc:
		return "ascending"
	case desc:
		return "descending"
	}
	return "random"
}

// profileColumn builds the report record for one column. values and
// rowIdx run in dataset order; samples carries the shuffled draw.
func (p *Profiler) profileColumn(name string, values []string, rowIdx []int, samples []string) *report.Map {
	times := report.NewMap()
	timed := func(stat string, fn func()) {
		start := time.Now()
		fn()
		times.Set(stat, report.Float(time.Since(start).Seconds()))
	}

	nonNull := make([]string, 0, len(values))
	nullCount := 0
	nullTypes := report.Set{}
	nullIndex := report.NewMap()
	for i, v := range values {
		spelling, isNull := nullSpelling(v)
		if !isNull {
			nonNull = append(nonNull, v)
			continue
		}
		nullCount++
		existing, seen := nullIndex.Get(spelling)
		if !seen {
			nullTypes = append(nullTypes, report.String(spelling))
			nullIndex.Set(spelling, report.Seq{report.Int(rowIdx[i])})
			continue
		}
		nullIndex.Set(spelling, append(existing.(report.Seq), report.Int(rowIdx[i])))
	}

	var dtype valueType
	intN, floatN, boolN, dateN := 0, 0, 0, 0
	timed("data_type", func() {
		for _, v := range nonNull {
			dtype = generalize(dtype, detectType(v))
			if isInt(v) {
				intN++
			}
			if isFloat(v) {
				floatN++
			}
			if isBool(v) {
				boolN++
			}
			if isDatetime(v) {
				dateN++
			}
		}
		if dtype == "" {
			dtype = typeString
		}
	})

	ratio := func(n int) report.Float {
		if len(nonNull) == 0 {
			return 0
		}
		return report.Float(float64(n) / float64(len(nonNull)))
	}
	representation := report.NewMap().
		Set("int", ratio(intN)).
		Set("float", ratio(floatN)).
		Set("bool", ratio(boolN)).
		Set("datetime", ratio(dateN)).
		Set("string", ratio(len(nonNull)))

	stats := report.NewMap().
		Set("sample_size", report.Int(len(values))).
		Set("null_count", report.Int(nullCount)).
		Set("null_types", nullTypes).
		Set("null_types_index", nullIndex)

	distinct := make(map[string]int, len(nonNull))
	for _, v := range nonNull {
		distinct[v]++
	}
	stats.Set("unique_count", report.Int(len(distinct)))
	stats.Set("unique_ratio", ratio(len(distinct)))
	stats.Set("data_type_representation", representation)

	var nums []float64
	if dtype == typeInt || dtype == typeFloat {
		timed("statistics", func() {
			nums = make([]float64, 0, len(nonNull))
			skipped := 0
			for _, v := range nonNull {
				f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
				if err != nil {
					skipped++
					continue
				}
				nums = append(nums, f)
			}
			if skipped > 0 {
				p.log.Warn("dropped unparseable numeric values",
					"column", name, "count", skipped)
			}
			if len(nums) == 0 {
				return
			}
			sorted := append([]float64(nil), nums...)
			sort.Float64s(sorted)
			sum, zeros, negatives := 0.0, 0, 0
			for _, f := range sorted {
				sum += f
				if f == 0 {
					zeros++
				}
				if f < 0 {
					negatives++
				}
			}
			mean := sum / float64(len(sorted))
			variance := 0.0
			if len(sorted) > 1 {
				for _, f := range sorted {
					d := f - mean
					variance += d * d
				}
				variance /= float64(len(sorted) - 1)
			}
			qv := quantileVector(sorted)
			stats.Set("min", report.Float(sorted[0])).
				Set("max", report.Float(sorted[len(sorted)-1])).
				Set("sum", report.Float(sum)).
				Set("mean", report.Float(mean)).
				Set("variance", report.Float(variance)).
				Set("stddev", report.Float(math.Sqrt(variance))).
				Set("median", report.Float(qv[(quantilePoints-1)/2])).
				Set("num_zeros", report.Int(zeros)).
				Set("num_negatives", report.Int(negatives))
			bins := report.BinQuantiles(qv, p.opts.QuantileGroups)
			quantiles := report.NewMap()
			for i := 0; i < len(bins); i++ {
				quantiles.Set(strconv.Itoa(i), report.Float(bins[i]))
			}
			stats.Set("quantiles", quantiles)
		})
		timed("histogram", func() {
			if len(nums) == 0 {
				return
			}
			sorted := append([]float64(nil), nums...)
			sort.Float64s(sorted)
			counts, edges := histogram(sorted, p.opts.HistogramBins)
			stats.Set("histogram", report.NewMap().
				Set("bin_counts", report.Array(counts)).
				Set("bin_edges", report.Array(edges)))
		})
	}

	order := ""
	timed("order", func() {
		if len(nums) > 0 {
			order = detectOrder(len(nums), func(i, j int) int {
				switch {
				case nums[i] < nums[j]:
					return -1
				case nums[i] > nums[j]:
					return 1
				}
				return 0
			})
			return
		}
		order = detectOrder(len(nonNull), func(i, j int) int {
			return strings.Compare(nonNull[i], nonNull[j])
		})
	})

	categorical := len(distinct) <= maxCategories && len(distinct) > 0
	if categorical {
		timed("categories", func() {
			names := make([]string, 0, len(distinct))
			for v := range distinct {
				names = append(names, v)
			}
			sort.Slice(names, func(i, j int) bool {
				if distinct[names[i]] != distinct[names[j]] {
					return distinct[names[i]] > distinct[names[j]]
				}
				return names[i] < names[j]
			})
			categories := make(report.Seq, 0, len(names))
			for _, v := range names {
				categories = append(categories, report.String(v))
			}
			stats.Set("categories", categories)
		})
	}
	stats.Set("times", times)

	sampleSeq := make(report.Seq, 0, maxSamples)
	for _, v := range samples {
		sampleSeq = append(sampleSeq, report.String(v))
	}

	return report.NewMap().
		Set("column_name", report.String(name)).
		Set("data_type", report.String(string(dtype))).
		Set("categorical", report.Bool(categorical)).
		Set("order", report.String(order)).
		Set("samples", sampleSeq).
		Set("statistics", stats)
}
