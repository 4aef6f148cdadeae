package perfstats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimeAccumulator(t *testing.T) {
	a := TimeAccumulator{}
	require.Equal(t, time.Duration(0), a.Average())

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.AddSample(time.Duration(i+1) * time.Millisecond)
		}()
	}
	wg.Wait()
	require.Equal(t, int64(10), a.Samples())
	require.Equal(t, 55*time.Millisecond, a.Total())
	require.Equal(t, 5500*time.Microsecond, a.Average())

	a.Reset()
	require.Equal(t, int64(0), a.Samples())
}
