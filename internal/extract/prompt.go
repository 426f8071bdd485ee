package extract

// extractionPrompt is the fixed instruction sent with every batch. It
// documents the short key dictionary shared with the turn-log format.
const extractionPrompt = `You are a narrative log compressor. The text between the [기록 시작] and [기록 끝] lines is a turn log. Each unit begins with a heading line such as "## [턴 N]", "## [N일차]" or "## [에피소드 N]".

For every unit, output exactly one minified JSON object with these keys:
  "t"   unit number from the heading
  "ttl" the unit's title line, if present
  "sum" a 1-2 sentence summary of what happened
  "cho" the choice taken in the unit, if any
  "st"  the last state snapshot of the unit, keeping the short keys as-is:
        nm(name) lv(level) hp(health) mn(mind) gld(money) aff(affinity)
        loc(location) dt(date) tm(time) prg(progress) st(status)

Omit keys that have no value. Output only the JSON objects, one per unit,
joined by commas. No array brackets, no code fences, no commentary.`

const (
	payloadOpen  = "[기록 시작]"
	payloadClose = "[기록 끝]"
)

// wrapBatch frames one batch's text with the fixed delimiter lines.
func wrapBatch(text string) string {
	return payloadOpen + "\n" + text + "\n" + payloadClose
}
