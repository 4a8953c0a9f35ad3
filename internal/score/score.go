// Package score implements the Scoring Engine: a single-threaded streaming
// reader over per_action.jsonl that normalizes and classifies each record
// and computes the Base+Bonus-Penalty score, the same pure-aggregation
// shape as the teacher's market.Book mid-price tracking, generalized from
// one running statistic to several bounded maps.
package score

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"perpbench/internal/domain"
	"perpbench/internal/signature"
	"perpbench/pkg/types"
)

const bonusPerExtraSignature = 0.25

// EvalRecord is one line of eval_per_action.jsonl: the normalized view of a
// single input step.
type EvalRecord struct {
	StepIdx     int      `json:"step_idx"`
	Signatures  []string `json:"signatures"`
	Ignored     bool     `json:"ignored"`
	WindowKeyMs int64    `json:"window_key_ms"`
}

// DomainResult is one element of Report.PerDomain.
type DomainResult struct {
	Name             string   `json:"name"`
	Weight           float64  `json:"weight"`
	UniqueSignatures []string `json:"unique_signatures"`
	UniqueCount      int      `json:"unique_count"`
	Contribution     float64  `json:"contribution"`
}

// Metadata is the Report's environment fingerprint.
type Metadata struct {
	BenchVersion       string   `json:"bench_version"`
	DomainsHash        string   `json:"domains_hash"`
	RunDir             string   `json:"run_dir"`
	NormalizationDrops int      `json:"normalization_drops"`
	UnmappedSignatures []string `json:"unmapped_signatures"`
}

// Report is the Scoring Engine's output.
type Report struct {
	FinalScore         float64        `json:"final_score"`
	Base               float64        `json:"base"`
	Bonus              float64        `json:"bonus"`
	Penalty            float64        `json:"penalty"`
	PerDomain          []DomainResult `json:"per_domain"`
	UniqueSignatures   []string       `json:"unique_signatures"`
	PerSignatureCounts map[string]int `json:"per_signature_counts"`
	CapPerSignature    uint32         `json:"cap_per_signature"`
	WindowMs           int64          `json:"window_ms"`
	Metadata           Metadata       `json:"metadata"`
}

// Options configures one scoring run.
type Options struct {
	Policy           *domain.Policy
	WindowMsOverride int64  // 0 means "trust the runner's window_key_ms"
	CapOverride      uint32 // 0 means "use policy.PerSignatureCap"
	BenchVersion     string
	RunDir           string
}

// Run streams input line-by-line, writes the per-step eval view to eval,
// and returns the final Report. input and eval are both closed by the
// caller.
func Run(input io.Reader, eval io.Writer, opts Options) (*Report, error) {
	signatureCap := opts.Policy.PerSignatureCap
	if opts.CapOverride > 0 {
		signatureCap = opts.CapOverride
	}
	windowMs := opts.Policy.PerActionWindowMs
	if opts.WindowMsOverride > 0 {
		windowMs = opts.WindowMsOverride
	}

	counts := make(map[string]int)
	domainUnique := make(map[string]map[string]bool, len(opts.Policy.Domains))
	for _, d := range opts.Policy.Domains {
		domainUnique[d.Name] = make(map[string]bool)
	}
	windowSets := make(map[int64]map[string]bool)
	unmapped := make(map[string]bool)
	normalizationDrops := 0

	evalWriter := bufio.NewWriter(eval)
	defer evalWriter.Flush()

	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec types.ActionLogRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			normalizationDrops++
			continue
		}

		windowKey := rec.WindowKeyMs
		if opts.WindowMsOverride > 0 {
			windowKey = (rec.SubmitTsMs / windowMs) * windowMs
		}

		sigs, isNoop, err := signature.Normalize(rec)
		if err != nil {
			normalizationDrops++
			continue
		}

		evalRec := EvalRecord{StepIdx: rec.StepIdx, Signatures: sigs, Ignored: isNoop, WindowKeyMs: windowKey}
		evalLine, err := json.Marshal(evalRec)
		if err != nil {
			return nil, fmt.Errorf("marshal eval record: %w", err)
		}
		if _, err := evalWriter.Write(append(evalLine, '\n')); err != nil {
			return nil, fmt.Errorf("write eval record: %w", err)
		}

		if isNoop {
			continue
		}

		if windowSets[windowKey] == nil {
			windowSets[windowKey] = make(map[string]bool)
		}

		for _, sig := range sigs {
			counts[sig]++
			windowSets[windowKey][sig] = true

			if counts[sig] > int(signatureCap) {
				continue
			}
			name, _, ok := opts.Policy.Classify(sig)
			if !ok {
				unmapped[sig] = true
				continue
			}
			domainUnique[name][sig] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if err := evalWriter.Flush(); err != nil {
		return nil, fmt.Errorf("flush eval output: %w", err)
	}

	var base float64
	perDomain := make([]DomainResult, 0, len(opts.Policy.Domains))
	for _, d := range opts.Policy.Domains {
		sigs := sortedKeys(domainUnique[d.Name])
		contribution := d.Weight * float64(len(sigs))
		base += contribution
		perDomain = append(perDomain, DomainResult{
			Name:             d.Name,
			Weight:           d.Weight,
			UniqueSignatures: sigs,
			UniqueCount:      len(sigs),
			Contribution:     contribution,
		})
	}

	var bonus float64
	for _, w := range sortedInt64Keys(windowSets) {
		distinct := len(windowSets[w])
		if distinct > 1 {
			bonus += bonusPerExtraSignature * float64(distinct-1)
		}
	}

	penaltyFactor := opts.Policy.PenaltyFactor
	var penalty float64
	for _, sig := range sortedKeys(counts) {
		over := counts[sig] - int(signatureCap)
		if over > 0 {
			penalty += penaltyFactor * float64(over)
		}
	}

	report := &Report{
		FinalScore:         base + bonus - penalty,
		Base:               base,
		Bonus:              bonus,
		Penalty:            penalty,
		PerDomain:          perDomain,
		UniqueSignatures:   sortedKeys(counts),
		PerSignatureCounts: counts,
		CapPerSignature:    signatureCap,
		WindowMs:           windowMs,
		Metadata: Metadata{
			BenchVersion:       opts.BenchVersion,
			DomainsHash:        opts.Policy.Hash,
			RunDir:             opts.RunDir,
			NormalizationDrops: normalizationDrops,
			UnmappedSignatures: sortedKeys(unmapped),
		},
	}
	return report, nil
}

// WriteReport marshals report as indented JSON to path.
func WriteReport(path string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedInt64Keys(m map[int64]map[string]bool) []int64 {
	out := make([]int64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
