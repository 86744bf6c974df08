package observability

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// keep-alive readers of the test HTTP client may outlive the response briefly
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
