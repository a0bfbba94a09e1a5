package alignment

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/cuongbtq/task-manage/internal/task"
)

// DefaultRankKey is the item field holding ground truth ranks
const DefaultRankKey = "ground_truth_rank_new"

const unknownType = "unknown"

// Metrics are hit rates and reciprocal ranks averaged over samples. The aar_*
// variants score each entity once by its average adjusted rank.
type Metrics struct {
	Hit1     float64 `json:"hit1"`
	Hit5     float64 `json:"hit5"`
	Hit10    float64 `json:"hit10"`
	MRR      float64 `json:"mrr"`
	AARHit1  float64 `json:"aar_hit1"`
	AARHit5  float64 `json:"aar_hit5"`
	AARHit10 float64 `json:"aar_hit10"`
	AARMRR   float64 `json:"aar_mrr"`
}

// Report is the result of an evaluation run
type Report struct {
	Overall  Metrics            `json:"overall"`
	ByType   map[string]Metrics `json:"by_type"`
	Entities int                `json:"entities"`
}

type samples struct {
	hit1, hit5, hit10, mrr             []float64
	aarHit1, aarHit5, aarHit10, aarMRR []float64
}

// AAR returns the average adjusted rank of ranks: the mean of r_k - k + 1 over
// the ranks sorted ascending, k starting at 1
func AAR(ranks []int) float64 {
	if len(ranks) == 0 {
		return 0
	}

	sorted := append([]int(nil), ranks...)
	sort.Ints(sorted)

	total := 0
	for i, r := range sorted {
		total += r - (i + 1) + 1
	}
	return float64(total) / float64(len(sorted))
}

// Evaluate scores every entity in data by the ranks found under rankKey.
// Entities without ranks are skipped.
func Evaluate(data map[string]map[string]json.RawMessage, rankKey string) (*Report, error) {
	if rankKey == "" {
		rankKey = DefaultRankKey
	}

	overall := &samples{}
	byType := make(map[string]*samples)
	entities := 0

	for key, item := range data {
		ranks, err := parseRanks(item[rankKey])
		if err != nil {
			return nil, fmt.Errorf("%w: entity %s: %v", task.ErrMalformedMessage, key, err)
		}
		if len(ranks) == 0 {
			continue
		}
		entities++

		entityType := unknownType
		if raw, ok := item["entity_type"]; ok {
			if err := json.Unmarshal(raw, &entityType); err != nil {
				return nil, fmt.Errorf("%w: entity %s: entity_type: %v", task.ErrMalformedMessage, key, err)
			}
		}
		typed, ok := byType[entityType]
		if !ok {
			typed = &samples{}
			byType[entityType] = typed
		}

		for _, r := range ranks {
			overall.addRank(r)
			typed.addRank(r)
		}

		aar := AAR(ranks)
		overall.addAAR(aar)
		typed.addAAR(aar)
	}

	report := &Report{
		Overall:  overall.metrics(),
		ByType:   make(map[string]Metrics, len(byType)),
		Entities: entities,
	}
	for t, s := range byType {
		report.ByType[t] = s.metrics()
	}
	return report, nil
}

func (s *samples) addRank(r int) {
	s.hit1 = append(s.hit1, indicator(r <= 1))
	s.hit5 = append(s.hit5, indicator(r <= 5))
	s.hit10 = append(s.hit10, indicator(r <= 10))
	s.mrr = append(s.mrr, 1/float64(r))
}

func (s *samples) addAAR(aar float64) {
	s.aarHit1 = append(s.aarHit1, indicator(aar <= 1.000001))
	s.aarHit5 = append(s.aarHit5, indicator(aar < 5))
	s.aarHit10 = append(s.aarHit10, indicator(aar < 10))

	mrr := 0.0
	if aar > 0 {
		mrr = 1 / aar
	}
	s.aarMRR = append(s.aarMRR, mrr)
}

func (s *samples) metrics() Metrics {
	return Metrics{
		Hit1:     mean(s.hit1),
		Hit5:     mean(s.hit5),
		Hit10:    mean(s.hit10),
		MRR:      mean(s.mrr),
		AARHit1:  mean(s.aarHit1),
		AARHit5:  mean(s.aarHit5),
		AARHit10: mean(s.aarHit10),
		AARMRR:   mean(s.aarMRR),
	}
}

// Round returns m with every metric rounded to the given number of decimals
func (m Metrics) Round(decimals int) Metrics {
	p := math.Pow(10, float64(decimals))
	r := func(v float64) float64 { return math.Round(v*p) / p }
	return Metrics{
		Hit1:     r(m.Hit1),
		Hit5:     r(m.Hit5),
		Hit10:    r(m.Hit10),
		MRR:      r(m.MRR),
		AARHit1:  r(m.AARHit1),
		AARHit5:  r(m.AARHit5),
		AARHit10: r(m.AARHit10),
		AARMRR:   r(m.AARMRR),
	}
}

// parseRanks reads a {candidate: rank} object. Ranks may be numbers or numeric strings.
func parseRanks(raw json.RawMessage) ([]int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("ranks must be an object: %v", err)
	}

	ranks := make([]int, 0, len(values))
	for name, v := range values {
		var r int
		switch t := v.(type) {
		case float64:
			r = int(t)
		case string:
			n, err := strconv.Atoi(t)
			if err != nil {
				return nil, fmt.Errorf("rank of %s is not a number: %q", name, t)
			}
			r = n
		default:
			return nil, fmt.Errorf("rank of %s has unsupported type %T", name, v)
		}
		if r < 1 {
			return nil, fmt.Errorf("rank of %s must be at least 1, got %d", name, r)
		}
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	return ranks, nil
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
