package mcpserver

// Tool descriptions with interpretation guidance for LLMs.
// Each description explains what the tool does, when to use it,
// how to interpret results, and what comes back.

func describeListScales() string {
	return `Lists the assessment scales this server can score.

USE WHEN:
- Finding the scale_id to pass to compute_scores
- Checking which age range a scale is normed for
- Confirming the scale version and digest a stored result was scored against

INTERPRETING RESULTS:
- metric: t_score (center 50, SD 10) or standard_score (center 100, SD 15)
- direction: "higher is worse" for problem scales, "higher is better" for skill scales
- age_months: the youngest and oldest age covered by the scale's age bands
- primary_index: the composite used for the overall classification

METRICS RETURNED:
- Per scale: id, name, version, metric, domains, items, composites, age range, digest`
}

func describeComputeScores() string {
	return `Scores one assessment from inline responses without touching the store.

USE WHEN:
- Previewing a score before the responses are saved
- Re-checking a result by hand with corrected responses
- Explaining how a raw answer pattern turns into standard scores

INTERPRETING RESULTS:
- standard_scores are clamped to the range declared by the scale's metric
- percentiles come from the normal curve and are reported to one decimal
- A domain with insufficient data is listed in raw_scores with insufficient_data=true and is
  excluded from composites; a low_confidence composite has fewer members than its minimum
- risk labels come from the scale's bands; severity 0 is typical, 1 is at risk, 2 or more
  is clinically significant
- validity.verdict: acceptable, caution, or invalid; read the interpretation's validity caveat
  before acting on a caution or invalid profile
- norm_tiers shows which norms stratum each domain used; anything other than "exact" means the
  subject's age and gender stratum was missing and a broader norm was substituted

METRICS RETURNED:
- Raw, standard, and percentile scores per domain and composite
- Domain and composite risk, overall classification, validity flags
- Interpretation narrative and prioritized recommendations
- Input and scale digests for reproducibility`
}

func describeScoreAssessment() string {
	return `Scores a stored assessment instance by id and saves the result.

USE WHEN:
- An instance has all responses recorded and is marked ready
- Re-scoring a completed instance after a norms or scale update

INTERPRETING RESULTS:
- The instance moves to completed and the previous result, if any, is replaced
- "not ready" means the instance is still a draft; mark it ready first
- An insufficient data error means no clinical domain reached its completion threshold;
  the instance returns to draft so missing responses can be collected
- Same result fields as compute_scores

METRICS RETURNED:
- The persisted score result`
}
