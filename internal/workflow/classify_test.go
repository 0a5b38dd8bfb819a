package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"uctrader/internal/midas"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want CodeState
	}{
		{"USED", CodeActivated},
		{"used", CodeActivated},
		{" Success ", CodeActivated},
		{"done", CodeActivated},
		{"activated", CodeActivated},
		{"unused", CodeUnactivated},
		{"NOT_ACTIVATED", CodeUnactivated},
		{"ready", CodeUnactivated},
		{"invalid", CodeFailed},
		{"Error", CodeFailed},
		{"failed", CodeFailed},
		{"weird_unknown_status", CodeUnactivated},
		{"", CodeUnactivated},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStatus(tt.raw))
		})
	}
}

func TestClassifySingle(t *testing.T) {
	ok := ClassifySingle(midas.ActivationResult{Code: "UC-ABCDE", RawStatus: "success", Message: "done"})
	assert.True(t, ok.Success)
	assert.Equal(t, ReasonNone, ok.Reason)

	// success with an "already" marker is not a success
	already := ClassifySingle(midas.ActivationResult{RawStatus: "success", Message: "Code ALREADY redeemed"})
	assert.False(t, already.Success)
	assert.Equal(t, ReasonAlreadyUsed, already.Reason)

	invalid := ClassifySingle(midas.ActivationResult{RawStatus: "failed", Message: "region mismatch"})
	assert.False(t, invalid.Success)
	assert.Equal(t, ReasonInvalid, invalid.Reason)
}

func TestClassifyBatchItem(t *testing.T) {
	tests := []struct {
		name   string
		result midas.ActivationResult
		ok     bool
		reason Reason
	}{
		{"success", midas.ActivationResult{RawStatus: "success"}, true, ReasonNone},
		{"success status wins over message", midas.ActivationResult{RawStatus: "SUCCESS", Message: "already credited"}, true, ReasonNone},
		{"already redeemed", midas.ActivationResult{RawStatus: "failed", Message: "already redeemed"}, false, ReasonAlreadyUsed},
		{"used", midas.ActivationResult{RawStatus: "failed", Message: "code was used"}, false, ReasonAlreadyUsed},
		{"region", midas.ActivationResult{RawStatus: "failed", Message: "Region mismatch"}, false, ReasonRegion},
		{"other", midas.ActivationResult{RawStatus: "failed", Message: "bad code"}, false, ReasonInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ClassifyBatchItem(tt.result)
			assert.Equal(t, tt.ok, out.Success)
			assert.Equal(t, tt.reason, out.Reason)
		})
	}
}

func TestParseCodes(t *testing.T) {
	text := "Code: ABC 123 456\n\ncode:XYZ-98765\nshort\n  LMNOPQ  \n"
	assert.Equal(t, []string{"ABC123456", "XYZ-98765", "LMNOPQ"}, ParseCodes(text))
	assert.Empty(t, ParseCodes("abc\n12345"))
}

func TestParseIDs(t *testing.T) {
	text := "111\n 222 \nabc\n33 3\n\n444"
	assert.Equal(t, []string{"111", "222", "444"}, ParseIDs(text))
}
