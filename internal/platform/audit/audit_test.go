package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryRecorder(t *testing.T) {
	r := NewMemoryRecorder()
	r.Record(context.Background(), "worker", "claims.submitted", "claim:1", map[string]any{"payer_ref": "CH-1"})
	r.Record(context.Background(), "worker", "claims.denied", "claim:2", nil)

	assert.Len(t, r.Entries(), 2)
	assert.Len(t, r.ByAction("claims.submitted"), 1)
	assert.Equal(t, "claim:1", r.ByAction("claims.submitted")[0].Target)
}

func TestRedact(t *testing.T) {
	in := map[string]any{
		"patient_id":   1,
		"token":        "abc",
		"access_token": "def",
	}
	out := Redact(in)
	assert.Equal(t, "***", out["token"])
	assert.Equal(t, "***", out["access_token"])
	assert.Equal(t, 1, out["patient_id"])
	// Input map untouched.
	assert.Equal(t, "abc", in["token"])

	assert.Nil(t, Redact(nil))
}
