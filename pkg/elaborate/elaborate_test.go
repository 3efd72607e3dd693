package elaborate_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/riverline-labs/tenor/pkg/elaborate"
	"github.com/riverline-labs/tenor/pkg/interchange"
	"github.com/stretchr/testify/require"
)

// memLoader resolves imports against an in-memory file set, so these
// tests never touch the filesystem.
func memLoader(files map[string]string) elaborate.Loader {
	return func(path string) (string, error) {
		src, ok := files[path]
		if !ok {
			return "", &noSuchFile{path}
		}
		return src, nil
	}
}

type noSuchFile struct{ path string }

func (e *noSuchFile) Error() string { return "no such file: " + e.path }

func TestElaborate_MinimalFactBundleSucceeds(t *testing.T) {
	src := `
fact Amount {
  type: Decimal{precision:10,scale:2},
  source: "loan.amount"
}
`
	bundle, diags := elaborate.Elaborate("root.tenor", memLoader(map[string]string{"root.tenor": src}))
	require.Nil(t, diags)
	require.NotNil(t, bundle)

	data, err := json.Marshal(bundle)
	require.NoError(t, err)

	// P1: every emitted JSON object has keys in ascending order.
	require.True(t, strings.Index(string(data), `"constructs"`) < strings.Index(string(data), `"id"`))
	require.True(t, strings.Index(string(data), `"id"`) < strings.Index(string(data), `"kind"`))
	require.True(t, strings.Index(string(data), `"kind"`) < strings.Index(string(data), `"tenor"`))

	require.NoError(t, interchange.Validate(bundle))
}

func TestElaborate_DuplicateIDIsPass2Error(t *testing.T) {
	src := `
fact Amount {
  type: Int{min:0,max:100},
  source: "a"
}

fact Amount {
  type: Int{min:0,max:100},
  source: "b"
}
`
	_, diags := elaborate.Elaborate("root.tenor", memLoader(map[string]string{"root.tenor": src}))
	require.NotNil(t, diags)
	require.True(t, diags.HasErrors())

	found := false
	for _, d := range diags {
		if d.Code == elaborate.CodeDuplicateID {
			found = true
			require.Equal(t, 2, d.Pass)
		}
	}
	require.True(t, found, "expected a duplicate id diagnostic, got: %v", diags)
}

func TestElaborate_UnresolvedFactReferenceIsPass4Error(t *testing.T) {
	src := `
persona Underwriter {}

rule AlwaysTrue {
  stratum: 0,
  when: Missing > 10,
  produce: {
    verdict_type: Flagged,
    payload_type: Bool,
    payload_value: true
  }
}
`
	_, diags := elaborate.Elaborate("root.tenor", memLoader(map[string]string{"root.tenor": src}))
	require.NotNil(t, diags)

	found := false
	for _, d := range diags {
		if d.Code == elaborate.CodeUnresolvedFact {
			found = true
			require.Equal(t, 4, d.Pass)
		}
	}
	require.True(t, found, "expected an unresolved fact diagnostic, got: %v", diags)
}

func TestElaborate_SameStratumVerdictPresentIsStratumViolation(t *testing.T) {
	src := `
fact Amount {
  type: Int{min:0,max:100},
  source: "a"
}

rule Produces {
  stratum: 0,
  when: Amount > 10,
  produce: {
    verdict_type: Eligible,
    payload_type: Bool,
    payload_value: true
  }
}

rule Consumes {
  stratum: 0,
  when: verdict_present(Eligible),
  produce: {
    verdict_type: DoubleChecked,
    payload_type: Bool,
    payload_value: true
  }
}
`
	_, diags := elaborate.Elaborate("root.tenor", memLoader(map[string]string{"root.tenor": src}))
	require.NotNil(t, diags)

	found := false
	for _, d := range diags {
		if d.Code == elaborate.CodeStratumViolation {
			found = true
			require.Equal(t, 4, d.Pass)
		}
	}
	require.True(t, found, "expected a stratum violation diagnostic, got: %v", diags)
}

func TestElaborate_FlowStepCycleIsPass5Error(t *testing.T) {
	src := `
persona Applicant {}

flow PingPong {
  entry: a,
  steps: {
    a: {
      kind: handoff,
      from_persona: Applicant,
      to_persona: Applicant,
      next: b
    },
    b: {
      kind: handoff,
      from_persona: Applicant,
      to_persona: Applicant,
      next: a
    }
  }
}
`
	_, diags := elaborate.Elaborate("root.tenor", memLoader(map[string]string{"root.tenor": src}))
	require.NotNil(t, diags)

	found := false
	for _, d := range diags {
		if d.Code == elaborate.CodeFlowStepCycle {
			found = true
			require.Equal(t, 5, d.Pass)
		}
	}
	require.True(t, found, "expected a flow step cycle diagnostic, got: %v", diags)
}
