package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

func TestPollWhalesWorkflow(t *testing.T) {
	completed := time.Unix(1_700_000_060, 0).UTC()

	tests := []struct {
		name           string
		mockActivity   func(*testsuite.MockCallWrapper)
		expectedError  bool
		validateResult func(*testing.T, *PollWhalesResult)
	}{
		{
			name: "successful cycle",
			mockActivity: func(m *testsuite.MockCallWrapper) {
				m.Return(&PollCycleResult{
					StartTime:   1_700_000_000,
					CompletedAt: completed,
				}, nil)
			},
			validateResult: func(t *testing.T, result *PollWhalesResult) {
				assert.Equal(t, int64(1_700_000_000), result.StartTime)
				assert.True(t, completed.Equal(result.CompletedAt))
				assert.Nil(t, result.Error)
			},
		},
		{
			name: "cycle failure fails the run",
			mockActivity: func(m *testsuite.MockCallWrapper) {
				m.Return(nil, errors.New("database error"))
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()

			activities := &Activities{}
			env.RegisterActivity(activities.PollCycle)
			tt.mockActivity(env.OnActivity(activities.PollCycle, mock.Anything))

			env.ExecuteWorkflow(PollWhalesWorkflow, PollWhalesInput{Trigger: "schedule"})

			require.True(t, env.IsWorkflowCompleted())
			if tt.expectedError {
				assert.Error(t, env.GetWorkflowError())
				return
			}
			require.NoError(t, env.GetWorkflowError())

			var result PollWhalesResult
			require.NoError(t, env.GetWorkflowResult(&result))
			tt.validateResult(t, &result)
		})
	}
}

func TestPollWhalesWorkflow_NoActivityRetry(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.PollCycle)

	calls := 0
	env.OnActivity(activities.PollCycle, mock.Anything).Run(func(args mock.Arguments) {
		calls++
	}).Return(nil, errors.New("status write failed"))

	env.ExecuteWorkflow(PollWhalesWorkflow, PollWhalesInput{Trigger: "manual"})

	assert.Error(t, env.GetWorkflowError())
	assert.Equal(t, 1, calls)
}
