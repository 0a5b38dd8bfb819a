package workflow

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"uctrader/internal/midas"
)

// CodeState is the normalized state of a UC code
type CodeState string

const (
	CodeActivated   CodeState = "activated"
	CodeUnactivated CodeState = "unactivated"
	CodeFailed      CodeState = "failed"
)

var statusVocabulary = map[string]CodeState{
	"activated":     CodeActivated,
	"success":       CodeActivated,
	"used":          CodeActivated,
	"done":          CodeActivated,
	"unactivated":   CodeUnactivated,
	"unused":        CodeUnactivated,
	"new":           CodeUnactivated,
	"not_activated": CodeUnactivated,
	"available":     CodeUnactivated,
	"ok":            CodeUnactivated,
	"ready":         CodeUnactivated,
	"failed":        CodeFailed,
	"invalid":       CodeFailed,
	"error":         CodeFailed,
}

// NormalizeStatus maps a raw service status onto a CodeState.
// Unknown values are treated as unactivated.
func NormalizeStatus(raw string) CodeState {
	if state, ok := statusVocabulary[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return state
	}
	return CodeUnactivated
}

// Reason explains a failed activation
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonAlreadyUsed Reason = "already_used"
	ReasonRegion      Reason = "region_error"
	ReasonInvalid     Reason = "invalid"
	ReasonError       Reason = "error"
)

// Outcome is the classified result of one activation
type Outcome struct {
	Code    string
	Success bool
	Reason  Reason
	Message string
}

// ClassifySingle applies the single and clan activation rule: success only
// when the status is success and the message has no "already" marker.
func ClassifySingle(res midas.ActivationResult) Outcome {
	out := Outcome{Code: res.Code, Message: res.Message}
	already := containsFold(res.Message, "already")

	switch {
	case strings.EqualFold(res.RawStatus, "success") && !already:
		out.Success = true
	case already:
		out.Reason = ReasonAlreadyUsed
	default:
		out.Reason = ReasonInvalid
	}
	return out
}

// ClassifyBatchItem applies the stack activation rule. A success status is
// trusted as is; failures also detect region mismatches.
func ClassifyBatchItem(res midas.ActivationResult) Outcome {
	out := Outcome{Code: res.Code, Message: res.Message}

	switch {
	case strings.EqualFold(res.RawStatus, "success"):
		out.Success = true
	case containsFold(res.Message, "used"), containsFold(res.Message, "redeemed"), containsFold(res.Message, "already"):
		out.Reason = ReasonAlreadyUsed
	case containsFold(res.Message, "region"):
		out.Reason = ReasonRegion
	default:
		out.Reason = ReasonInvalid
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

var codeLabel = regexp.MustCompile(`(?i)code\s*:`)

// normalizeCode strips a "Code:" label and all whitespace
func normalizeCode(line string) string {
	line = codeLabel.ReplaceAllString(line, "")
	return strings.Join(strings.Fields(line), "")
}

// ParseCodes returns the normalized codes of a multi-line message,
// dropping lines of five characters or fewer.
func ParseCodes(text string) []string {
	var codes []string
	for _, line := range strings.Split(text, "\n") {
		code := normalizeCode(line)
		if utf8.RuneCountInString(code) > 5 {
			codes = append(codes, code)
		}
	}
	return codes
}

// ParseIDs returns the pure-digit lines of a multi-line message
func ParseIDs(text string) []string {
	var ids []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if isDigits(line) {
			ids = append(ids, line)
		}
	}
	return ids
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
