package testutil

import (
	"context"
	"testing"

	"k8s.io/klog/v2"
	"k8s.io/klog/v2/ktesting"
)

// Context returns the test's context carrying a logger that writes to t.Log.
func Context(t testing.TB) context.Context {
	t.Helper()
	log := ktesting.NewLogger(t, ktesting.DefaultConfig)
	return klog.NewContext(t.Context(), log)
}
