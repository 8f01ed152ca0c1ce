package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusDecodeWithoutProgress(t *testing.T) {
	t.Parallel()

	var st Status
	require.NoError(t, json.Unmarshal([]byte(`{"running":true,"error":null}`), &st))
	require.True(t, st.Running)
	require.Nil(t, st.Error)
	require.True(t, st.Progress.Empty())
	require.False(t, st.Terminal())
}

func TestStatusDecodeWithProgressAndError(t *testing.T) {
	t.Parallel()

	raw := `{"running":false,"error":"boom","progress":{"current_page":4,"start_page":3,"end_page":5}}`
	var st Status
	require.NoError(t, json.Unmarshal([]byte(raw), &st))
	require.True(t, st.Terminal())
	require.True(t, st.Failed())
	require.Equal(t, "boom", st.ErrorText())
	require.Equal(t, 4, *st.Progress.CurrentPage)
	require.Nil(t, st.Progress.ChannelIndex)
	require.False(t, st.Progress.Empty())
}

func TestPhaseTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, PhaseIdle.Terminal())
	require.False(t, PhaseRunning.Terminal())
	require.True(t, PhaseCompleted.Terminal())
	require.True(t, PhaseFailed.Terminal())
}

func TestLimitsCloneIsIndependent(t *testing.T) {
	t.Parallel()

	orig := Limits{{Name: "requests", Current: 5, Maximum: 10, Severity: SeverityGate}}
	cp := orig.Clone()
	cp[0].Current = 0
	require.Equal(t, 5, orig[0].Current)
	require.Nil(t, Limits(nil).Clone())
}
