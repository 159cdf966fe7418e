package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmchat/core"
	"github.com/hupe1980/swarmchat/model"
	"github.com/hupe1980/swarmchat/registry"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("test", reg, nil), reg
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/api/chat", 200, 100*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/chat", 200, 50*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/chat", 504, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/chat", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/chat", "504")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.httpRequestDuration))
}

func TestCollector_Pipeline(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveRun("python", "success", 4, time.Second)
	c.ObserveRun("sql", core.KindTimeout, 0, time.Second)
	c.ObserveStep("success", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("python", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("sql", core.KindTimeout)))
	assert.Equal(t, 1, testutil.CollectAndCount(c.runSteps), "only successful runs record steps")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("success")))
}

func TestCollector_Registry(t *testing.T) {
	c, reg := newTestCollector(t)

	c.ObserveCreate(nil)
	c.ObserveCreate(&core.InstanceCreationError{Err: errors.New("boom")})
	c.ObserveRemoval(registry.ReasonReset)
	c.SetInstances(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.creationsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.creationsTotal.WithLabelValues(core.KindInstanceCreation)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.removalsTotal.WithLabelValues(registry.ReasonReset)))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP test_registry_instances Number of live conversation instances
# TYPE test_registry_instances gauge
test_registry_instances 3
`), "test_registry_instances")
	require.NoError(t, err)
}

func TestCollector_ModelCalls(t *testing.T) {
	c, _ := newTestCollector(t)
	info := model.Info{Name: "gpt-4o", Provider: "openai"}

	c.ObserveModelCall(info, "success", time.Second, &model.TokenUsage{PromptTokens: 10, CompletionTokens: 5})
	c.ObserveModelCall(info, "error", time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.modelRequestsTotal.WithLabelValues("openai", "gpt-4o", "error")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.modelTokensUsed.WithLabelValues("openai", "gpt-4o", "prompt")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.modelTokensUsed.WithLabelValues("openai", "gpt-4o", "completion")))
}

func TestNewCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector("a", prometheus.NewRegistry(), nil)
		NewCollector("a", prometheus.NewRegistry(), nil)
	})
}
