package conform_test

import (
	"context"
	"testing"
	"time"

	"github.com/riverline-labs/tenor/pkg/store"
	"github.com/riverline-labs/tenor/pkg/store/conform"
	"github.com/riverline-labs/tenor/pkg/store/memstore"
	"github.com/stretchr/testify/require"
)

func TestConformanceHarness_Memstore(t *testing.T) {
	engine := conform.NewEngine()
	for _, g := range conform.DefaultGates() {
		engine.RegisterGate(g)
	}

	rc := &conform.RunContext{
		Context: context.Background(),
		NewStore: func() store.Store { return memstore.New() },
		Clock:    time.Now,
	}

	report := engine.Run(rc)
	for _, r := range report.GateResults {
		require.True(t, r.Pass, "gate %s failed: %v", r.GateID, r.Reasons)
	}
	require.True(t, report.Pass)
	require.Len(t, report.GateResults, 7)
}
