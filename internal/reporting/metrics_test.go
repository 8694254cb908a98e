package reporting

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCacheMetricsCountHitsAndMisses(t *testing.T) {
	require.NoError(t, SetupCacheMetrics(prometheus.NewRegistry()))

	_, ds := newFixture()
	svc, _, _ := newCachedService(t, &memorySource{ds: ds})
	ctx := context.Background()

	hitsBefore := testutil.ToFloat64(cacheHitCounter.WithLabelValues("summary"))
	missBefore := testutil.ToFloat64(cacheMissCounter.WithLabelValues("summary"))

	_, err := svc.Summary(ctx, asOf)
	require.NoError(t, err)
	_, err = svc.Summary(ctx, asOf)
	require.NoError(t, err)

	require.Equal(t, missBefore+1, testutil.ToFloat64(cacheMissCounter.WithLabelValues("summary")))
	require.Equal(t, hitsBefore+1, testutil.ToFloat64(cacheHitCounter.WithLabelValues("summary")))
}
