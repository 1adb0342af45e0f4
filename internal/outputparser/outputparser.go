// Package outputparser extracts structured data out of an execution log's
// free-form text: the output document id an agent reports having created,
// any GitHub PR URL it reports opening, and the token usage embedded in the
// terminal result line. Ported from
// original_source/emdx/workflows/output_parser.py, keeping its regex
// cascades and "last match wins" policy verbatim in Go form.
package outputparser

import (
	"encoding/json"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mdforge/mdforge/internal/obslog"
)

var (
	ansiEscape = regexp.MustCompile(`\x1B(?:[@-Z\\_]|\[[0-?]*[ -/]*[@-~])`)
	richCodes  = regexp.MustCompile(`\[\d+(?:;\d+)*m`)
	mdEmphasis = regexp.MustCompile(`\*+([^*]+)\*+`)
)

// cleanContent strips ANSI escapes, Rich/markdown color codes, and markdown
// emphasis markers so the pattern cascades below match cleanly regardless
// of how the assistant styled its terminal output.
func cleanContent(content string) string {
	c := ansiEscape.ReplaceAllString(content, "")
	c = richCodes.ReplaceAllString(c, "")
	c = mdEmphasis.ReplaceAllString(c, "$1")
	return c
}

var docIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)saved as document #(\d+)`),
	regexp.MustCompile(`(?i)Saved as #(\d+)`),
	regexp.MustCompile(`(?i)Created document #(\d+)`),
	regexp.MustCompile(`(?i)Document ID(?:\s+created)?[:\s]*\*?\*?#?(\d+)\*?\*?`),
	regexp.MustCompile(`(?i)\*\*Document ID:\*\*\s*(\d+)`),
	regexp.MustCompile(`(?i)document ID[:\s]+#?(\d+)`),
	regexp.MustCompile(`(?i)doc_id[:\s]+(\d+)`),
	regexp.MustCompile(`(?i)✅ Saved as\s*#(\d+)`),
	regexp.MustCompile("(?i)doc ID\\s*`(\\d+)`"),
	regexp.MustCompile(`(?i)Saved to EMDX as.*?(\d+)`),
}

// ExtractOutputDocID scans log content for "this is the document id I
// produced" phrasings and returns the LAST match across all patterns, on
// the theory that an agent's final save is the one that counts. It returns
// (0, false) when nothing matches; the original note on cleaning markup
// before matching still applies since the cascade matches unstyled text.
func ExtractOutputDocID(content string) (int64, bool) {
	clean := cleanContent(content)
	var last int64
	lastPos := -1
	found := false
	for _, pat := range docIDPatterns {
		for _, m := range pat.FindAllStringSubmatchIndex(clean, -1) {
			if m[2] < lastPos {
				continue
			}
			if v, err := strconv.ParseInt(clean[m[2]:m[3]], 10, 64); err == nil {
				last = v
				lastPos = m[2]
				found = true
			}
		}
	}
	return last, found
}

// ExtractOutputDocIDFromFile reads log_file and applies ExtractOutputDocID.
// Any I/O error is swallowed to (0, false): a log file that isn't there yet
// (or vanished) simply means "nothing found", never an error the caller
// must handle.
func ExtractOutputDocIDFromFile(logFile string, log *obslog.Logger) (int64, bool) {
	b, err := os.ReadFile(logFile)
	if err != nil {
		log.Debug("could not read log file for doc id extraction", "log_file", logFile, "error", err)
		return 0, false
	}
	return ExtractOutputDocID(string(b))
}

var prURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)PR_URL[:\s]+\*?\*?(https://github\.com/[^\s\)>\]]+)`),
	regexp.MustCompile(`(?i)pr_url[:\s]+\*?\*?(https://github\.com/[^\s\)>\]]+)`),
	regexp.MustCompile(`(?i)PR[:\s]+\*?\*?(https://github\.com/[^\s\)>\]]+/pull/\d+)`),
	regexp.MustCompile(`(?i)pull request[:\s]+\*?\*?(https://github\.com/[^\s\)>\]]+)`),
	regexp.MustCompile(`(?i)[Cc]reated (?:PR|pull request)[:\s]+\*?\*?(https://github\.com/[^\s\)>\]]+)`),
	regexp.MustCompile(`(?i)[Oo]pened (?:PR|pull request)[:\s]+\*?\*?(https://github\.com/[^\s\)>\]]+)`),
	regexp.MustCompile(`(?i)PR (?:is |at |created at )?\*?\*?(https://github\.com/[^\s\)>\]]+)`),
	regexp.MustCompile(`(?i)\[(?:PR|Pull Request)[^\]]*\]\((https://github\.com/[^\s\)]+/pull/\d+)\)`),
	regexp.MustCompile(`(?i)\[[^\]]*PR[^\]]*\]\((https://github\.com/[^\s\)]+/pull/\d+)\)`),
	regexp.MustCompile(`(?i)\[[^\]]*\]\((https://github\.com/[^\s\)]+/pull/\d+)\)`),
	regexp.MustCompile(`(?im)(https://github\.com/[^\s\)>\]]+/pull/\d+)\s*$`),
	regexp.MustCompile(`(?im)^\s*(https://github\.com/[^\s\)>\]]+/pull/\d+)\s*$`),
}

var trailingPunct = "., ;:!?)>'\""

// ExtractPRURL returns the LAST GitHub PR URL reported in content, across
// all phrasings the cascade knows, or "" if none matched. Mirrors
// extract_pr_url's validation that the match actually contains "/pull/".
func ExtractPRURL(content string) string {
	clean := cleanContent(content)
	var last string
	lastPos := -1
	for _, pat := range prURLPatterns {
		for _, m := range pat.FindAllStringSubmatchIndex(clean, -1) {
			if m[2] < lastPos {
				continue
			}
			url := strings.TrimRight(clean[m[2]:m[3]], trailingPunct)
			if strings.Contains(url, "/pull/") {
				last = url
				lastPos = m[2]
			}
		}
	}
	return last
}

// ExtractPRURLFromFile is ExtractPRURL over a log file's content.
func ExtractPRURLFromFile(logFile string, log *obslog.Logger) string {
	b, err := os.ReadFile(logFile)
	if err != nil {
		log.Debug("could not read log file for PR url extraction", "log_file", logFile, "error", err)
		return ""
	}
	return ExtractPRURL(string(b))
}

var pullNumberSuffix = regexp.MustCompile(`/pull/(\d+)`)

var prNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)PR\s*#(\d+)`),
	regexp.MustCompile(`(?i)pull request\s*#(\d+)`),
	regexp.MustCompile(`(?i)[Cc]reated PR\s*#(\d+)`),
	regexp.MustCompile(`(?i)[Oo]pened PR\s*#(\d+)`),
	regexp.MustCompile(`(?i)[Mm]erged PR\s*#(\d+)`),
	regexp.MustCompile(`(?i)PR number[:\s]+#?(\d+)`),
}

// ExtractPRNumber prefers the number embedded in ExtractPRURL's result, and
// falls back to bare "PR #123" style references, again taking the last
// match.
func ExtractPRNumber(content string) (int, bool) {
	if url := ExtractPRURL(content); url != "" {
		if m := pullNumberSuffix.FindStringSubmatch(url); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}

	clean := cleanContent(content)
	var last int
	lastPos := -1
	found := false
	for _, pat := range prNumberPatterns {
		for _, m := range pat.FindAllStringSubmatchIndex(clean, -1) {
			if m[2] < lastPos {
				continue
			}
			if n, err := strconv.Atoi(clean[m[2]:m[3]]); err == nil {
				last = n
				lastPos = m[2]
				found = true
			}
		}
	}
	return last, found
}

var anyPRURL = regexp.MustCompile(`https://github\.com/[^\s\)>\]]+/pull/\d+`)

// ExtractAllPRURLs returns every unique PR URL in content, unlike
// ExtractPRURL which keeps only the last one.
func ExtractAllPRURLs(content string) []string {
	clean := cleanContent(content)
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range anyPRURL.FindAllString(clean, -1) {
		url := strings.TrimRight(raw, trailingPunct)
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, url)
	}
	return out
}

// TokenUsage is the detailed token accounting embedded in the assistant's
// terminal result line.
type TokenUsage struct {
	Input        int     `json:"input"`
	Output       int     `json:"output"`
	CacheIn      int     `json:"cache_in"`
	CacheCreate  int     `json:"cache_create"`
	Total        int     `json:"total"`
	CostUSD      float64 `json:"cost_usd"`
}

const rawResultMarker = "__RAW_RESULT_JSON__:"

type rawResultUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

type rawResultLine struct {
	Type         string         `json:"type"`
	Usage        rawResultUsage `json:"usage"`
	TotalCostUSD float64        `json:"total_cost_usd"`
}

// rawResultSchema is compiled once and gates every "__RAW_RESULT_JSON__:"
// payload before its fields are trusted: a malformed usage block (wrong
// types, negative counts) is rejected the same way a malformed JSON line
// is, rather than silently coerced by json.Unmarshal's zero values.
var rawResultSchema = mustCompileRawResultSchema()

func mustCompileRawResultSchema() *jsonschema.Schema {
	const schemaDoc = `{
		"type": "object",
		"required": ["type"],
		"properties": {
			"type": {"type": "string"},
			"total_cost_usd": {"type": "number", "minimum": 0},
			"usage": {
				"type": "object",
				"properties": {
					"input_tokens": {"type": "integer", "minimum": 0},
					"output_tokens": {"type": "integer", "minimum": 0},
					"cache_creation_input_tokens": {"type": "integer", "minimum": 0},
					"cache_read_input_tokens": {"type": "integer", "minimum": 0}
				}
			}
		}
	}`
	c := jsonschema.NewCompiler()
	if err := c.AddResource("raw_result.json", strings.NewReader(schemaDoc)); err != nil {
		panic(err)
	}
	schema, err := c.Compile("raw_result.json")
	if err != nil {
		panic(err)
	}
	return schema
}

// ExtractTokenUsageDetailed scans content line by line for a
// "__RAW_RESULT_JSON__:" marker (written by the assistant's output
// formatter) and decodes the JSON payload that follows it, gating it
// through rawResultSchema before trusting its fields. An absent, malformed,
// or schema-invalid marker yields a zero TokenUsage, never an error.
func ExtractTokenUsageDetailed(content string) TokenUsage {
	for _, line := range strings.Split(content, "\n") {
		if !strings.HasPrefix(line, rawResultMarker) {
			continue
		}
		jsonStr := strings.TrimPrefix(line, rawResultMarker)

		var doc any
		if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
			continue
		}
		if err := rawResultSchema.Validate(doc); err != nil {
			continue
		}

		var parsed rawResultLine
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
			continue
		}
		if parsed.Type != "result" {
			continue
		}
		u := parsed.Usage
		return TokenUsage{
			Input:       u.InputTokens + u.CacheReadInputTokens,
			Output:      u.OutputTokens,
			CacheIn:     u.CacheReadInputTokens,
			CacheCreate: u.CacheCreationInputTokens,
			Total:       u.InputTokens + u.OutputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens,
			CostUSD:     parsed.TotalCostUSD,
		}
	}
	return TokenUsage{}
}

// ExtractTokenUsageDetailedFromFile is ExtractTokenUsageDetailed over a
// log file's content.
func ExtractTokenUsageDetailedFromFile(logFile string, log *obslog.Logger) TokenUsage {
	b, err := os.ReadFile(logFile)
	if err != nil {
		log.Debug("could not read log file for token usage extraction", "log_file", logFile, "error", err)
		return TokenUsage{}
	}
	return ExtractTokenUsageDetailed(string(b))
}

// ExtractTokenUsage is the convenience wrapper returning just the total.
func ExtractTokenUsage(content string) int {
	return ExtractTokenUsageDetailed(content).Total
}

type toolUseLine struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// ExtractToolInvocations scans content for stream-json "tool_use" lines
// (spec §6's external interfaces table) and returns the distinct tool
// names invoked, in first-seen order. Used to audit a completed execution
// against an Agent Definition's allowed_tools after the fact — the
// subprocess itself is never sandboxed or intercepted live.
func ExtractToolInvocations(content string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var parsed toolUseLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		if parsed.Type != "tool_use" || parsed.Name == "" {
			continue
		}
		if _, ok := seen[parsed.Name]; ok {
			continue
		}
		seen[parsed.Name] = struct{}{}
		out = append(out, parsed.Name)
	}
	return out
}
