package sluiceerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sluicehq/sluice/pkg/remoteshell"
)

func TestClassify_PromotesRemoteshellNetworkError(t *testing.T) {
	netErr := &remoteshell.Error{Kind: remoteshell.KindNetwork, Cause: errors.New("dial tcp: refused")}
	classified := Classify(netErr, "ATTACKS")
	assert.Equal(t, KindTransientNetwork, classified.Kind)
	assert.Equal(t, "ATTACKS", classified.Stage)
	assert.True(t, IsRetryable(classified.Kind))
}

func TestClassify_FallsBackToFatalIO(t *testing.T) {
	classified := Classify(errors.New("disk full"), "REBUILD")
	assert.Equal(t, KindFatalIO, classified.Kind)
	assert.True(t, IsFatal(classified.Kind))
}

func TestClassify_PassesThroughAlreadyClassified(t *testing.T) {
	orig := New(KindOrphan, "COLLECT", errors.New("pid 1234 still running"))
	classified := Classify(orig, "COLLECT")
	assert.Same(t, orig, classified)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(KindOrphan))
	assert.True(t, IsFatal(KindFatalIO))
	assert.False(t, IsFatal(KindInvariant))
	assert.False(t, IsFatal(KindMalformed))
	assert.False(t, IsFatal(KindFeedbackRebuild))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindInvariant, "SYNC", cause)
	assert.ErrorIs(t, err, cause)
}
